package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCodeTaken is returned when a party code is already in use.
	ErrCodeTaken = errors.New("party code already in use")
	// ErrSeatTaken is returned when a present participant already holds the seat.
	ErrSeatTaken = errors.New("seat already taken")
	// ErrInvalidOrder is returned when a playlist order is not a permutation
	// of the party's items.
	ErrInvalidOrder = errors.New("playlist order must list every item exactly once")
)

type PartyRepository interface {
	Ping(ctx context.Context) error
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateParty(ctx context.Context, params CreatePartyParams) (Party, Participant, error)
	GetPartyByCode(ctx context.Context, code string) (Party, error)
	ListPublicParties(ctx context.Context, limit int) ([]PartySummary, error)
	EndParty(ctx context.Context, partyId string) error
	SetMicLocked(ctx context.Context, partyId string, locked bool) error
	SetSeatLocked(ctx context.Context, partyId string, locked bool) error

	GetPresentParticipant(ctx context.Context, partyId, participantId string) (Participant, error)
	ListPresentParticipants(ctx context.Context, partyId string) ([]Participant, error)
	ReserveSeat(ctx context.Context, params ReserveSeatParams) (Participant, error)
	// MarkParticipantLeft reports whether the participant was present before the call.
	MarkParticipantLeft(ctx context.Context, partyId, participantId string) (bool, error)
	// SetParticipantMuted only applies to present, non-host participants and
	// reports whether a row was updated.
	SetParticipantMuted(ctx context.Context, partyId, participantId string, muted bool) (bool, error)

	GetPlayback(ctx context.Context, partyId string) (PlaybackState, error)
	// SetPlayback upserts the playback row and returns it with the party's current index.
	SetPlayback(ctx context.Context, params SetPlaybackParams) (PlaybackState, int, error)

	ListPlaylist(ctx context.Context, partyId string) ([]PlaylistItem, error)
	ReorderPlaylist(ctx context.Context, partyId string, orderedIds []string) ([]PlaylistItem, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	// ListRecentMessages returns up to limit of the newest messages, oldest first.
	ListRecentMessages(ctx context.Context, partyId string, limit int) ([]Message, error)
}

// validOrder reports whether orderedIds is a permutation of ids.
func validOrder(ids, orderedIds []string) bool {
	if len(ids) != len(orderedIds) {
		return false
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = false
	}
	for _, id := range orderedIds {
		seen, ok := known[id]
		if !ok || seen {
			return false
		}
		known[id] = true
	}

	return true
}

// clampIndex falls back to the first track when idx is outside the playlist.
func clampIndex(idx, count int) int {
	if idx < 0 || idx >= count {
		return 0
	}
	return idx
}
