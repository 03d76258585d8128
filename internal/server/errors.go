package server

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/voice"
)

var (
	ErrInvalidCode         = errors.New("invalid party code")
	ErrPartyNotFound       = errors.New("party not found")
	ErrPartyEnded          = errors.New("party has ended")
	ErrSeatLocked          = errors.New("seats are locked")
	ErrUnknownSeat         = errors.New("seat is not part of this party")
	ErrSeatTaken           = database.ErrSeatTaken
	ErrInvalidDisplayName  = errors.New("display name must be 2 to 20 characters")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHost             = errors.New("not the party host")
	ErrNotJoined           = errors.New("connection is not bound to a participant")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInvalidTarget       = errors.New("invalid moderation target")
	ErrThrottled           = errors.New("rate limited")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrShuttingDown        = errors.New("coordinator is shutting down")
)

var rejections = []error{
	ErrInvalidCode,
	ErrPartyNotFound,
	ErrPartyEnded,
	ErrSeatLocked,
	ErrUnknownSeat,
	ErrSeatTaken,
	ErrInvalidDisplayName,
	ErrParticipantNotFound,
	ErrNotHost,
	ErrNotJoined,
	ErrInvalidPayload,
	ErrInvalidTarget,
	ErrThrottled,
	ErrUnknownEvent,
	database.ErrInvalidOrder,
	voice.ErrNotConfigured,
	voice.ErrInvalidCode,
	voice.ErrPartyUnavailable,
	voice.ErrParticipantNotFound,
}

// IsRejection reports whether err is an expected refusal of the request
// rather than a failure of the service.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusCode maps coordinator errors onto HTTP style status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrUnknownSeat),
		errors.Is(err, ErrInvalidDisplayName),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, database.ErrInvalidOrder),
		errors.Is(err, voice.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotHost),
		errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrPartyEnded),
		errors.Is(err, ErrSeatLocked):
		return http.StatusForbidden
	case errors.Is(err, ErrPartyNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, voice.ErrPartyUnavailable),
		errors.Is(err, voice.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSeatTaken):
		return http.StatusConflict
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, voice.ErrNotConfigured),
		errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorResponse builds the reply for a request/response event. Internal
// failures are not described to the caller.
func errorResponse(id int, err error) *ServerMessage {
	switch code := StatusCode(err); code {
	case http.StatusBadRequest:
		return ErrBadRequest(id, err.Error())
	case http.StatusForbidden:
		return ErrForbidden(id, err.Error())
	case http.StatusNotFound:
		return ErrNotFound(id, err.Error())
	case http.StatusConflict:
		return ErrConflict(id, err.Error())
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable(id, err.Error())
	case http.StatusInternalServerError:
		return ErrInternalError(id)
	default:
		return newResponse(id, code, err.Error(), nil)
	}
}
