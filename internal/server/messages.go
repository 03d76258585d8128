package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Client to server events.
const (
	EventJoin          = "party:join"
	EventLeave         = "party:leave"
	EventReserveSeat   = "seat:reserve"
	EventChatMessage   = "chat:message"
	EventReaction      = "reaction:send"
	EventPlaybackState = "playback:state"
	EventRequestSync   = "playback:requestSync"
	EventPlaylist      = "playlist:update"
	EventMicLock       = "host:micLock"
	EventSeatLock      = "host:seatLock"
	EventMute          = "host:mute"
	EventUnmute        = "host:unmute"
	EventKick          = "host:kick"
	EventLaunchGame    = "host:launchGame"
	EventVoiceJoin     = "voice:join"
)

// Server to client events. Chat, reaction, playback and playlist frames
// reuse the client event names.
const (
	EventPresenceUpdate = "presence:update"
	EventSeatUpdate     = "seat:update"
	EventVoiceMicLock   = "voice:micLock"
	EventSeatLockState  = "seat:lock"
	EventVoiceMute      = "voice:mute"
	EventPartyKick      = "party:kick"
	EventGameLaunch     = "party:gameLaunch"
	EventPartyEnded     = "party:ended"
	EventResponse       = "response"
)

type ClientMessage struct {
	Id   int             `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Id        int             `json:"id,omitempty"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Response  *Response       `json:"response,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type JoinPayload struct {
	Code          string `json:"code"`
	ParticipantId string `json:"participantId,omitempty"`
}

type SeatPayload struct {
	Code          string `json:"code"`
	SeatId        string `json:"seatId"`
	ParticipantId string `json:"participantId,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

type ChatPayload struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type ReactionPayload struct {
	Code  string `json:"code"`
	Emoji string `json:"emoji"`
}

type PlaybackPayload struct {
	Code         string  `json:"code"`
	Playing      bool    `json:"playing"`
	CurrentTime  float64 `json:"currentTime"`
	CurrentIndex *int    `json:"currentIndex,omitempty"`
}

type CodePayload struct {
	Code string `json:"code"`
}

type PlaylistPayload struct {
	Code       string   `json:"code"`
	OrderedIds []string `json:"orderedIds"`
}

type LockPayload struct {
	Code   string `json:"code"`
	Locked bool   `json:"locked"`
}

type TargetPayload struct {
	Code                string `json:"code"`
	TargetParticipantId string `json:"targetParticipantId"`
}

type GamePayload struct {
	Code string `json:"code"`
	Game string `json:"game,omitempty"`
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Type:      EventResponse,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func ErrBadRequest(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, msg, nil)
}

func ErrForbidden(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusForbidden, msg, nil)
}

func ErrNotFound(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusNotFound, msg, nil)
}

func ErrConflict(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusConflict, msg, nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, msg, nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "invalid message format", nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
