package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/events"
	"github.com/npezzotti/go-watchparty/internal/roomcode"
	"github.com/npezzotti/go-watchparty/internal/seatmap"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const (
	hostDisplayName  = "Host"
	createPartyTries = 3
)

type CreatePartyParams struct {
	Title      string
	Visibility string
	MaxSeats   int
	Theme      string
	Playlist   []database.PlaylistItemParams
}

// CreateParty allocates an unused code and stores the party with its host,
// playlist and initial playback state.
func (cs *Coordinator) CreateParty(ctx context.Context, params CreatePartyParams) (types.CreatedParty, error) {
	hostSeat := seatmap.BestHostSeat(params.MaxSeats)

	for range createPartyTries {
		code, err := roomcode.GenerateUnique(ctx, cs.db.CodeExists, 0)
		if err != nil {
			return types.CreatedParty{}, fmt.Errorf("allocate code: %w", err)
		}

		party, host, err := cs.db.CreateParty(ctx, database.CreatePartyParams{
			Code:       code,
			Title:      params.Title,
			Visibility: params.Visibility,
			MaxSeats:   params.MaxSeats,
			Theme:      params.Theme,
			HostSeat:   hostSeat,
			HostName:   hostDisplayName,
			Playlist:   params.Playlist,
		})
		if errors.Is(err, database.ErrCodeTaken) {
			cs.log.Debug().Str("code", code).Msg("party code raced, retrying")
			continue
		}
		if err != nil {
			return types.CreatedParty{}, fmt.Errorf("create party: %w", err)
		}

		cs.log.Info().Str("code", party.Code).Int("max_seats", party.MaxSeats).Msg("party created")
		cs.emit(ctx, events.PartyCreated, party, &host)

		return types.CreatedParty{
			Code:          party.Code,
			PartyId:       party.Id,
			HostSeat:      host.SeatId,
			ParticipantId: host.Id,
		}, nil
	}

	return types.CreatedParty{}, roomcode.ErrExhausted
}

// Snapshot returns the full room view, including ended rooms.
func (cs *Coordinator) Snapshot(ctx context.Context, rawCode string) (types.Party, error) {
	party, err := cs.resolveParty(ctx, rawCode)
	if err != nil {
		return types.Party{}, err
	}

	participants, err := cs.db.ListPresentParticipants(ctx, party.Id)
	if err != nil {
		return types.Party{}, fmt.Errorf("list participants: %w", err)
	}

	playback, err := cs.db.GetPlayback(ctx, party.Id)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return types.Party{}, fmt.Errorf("get playback: %w", err)
	}

	playlist, err := cs.db.ListPlaylist(ctx, party.Id)
	if err != nil {
		return types.Party{}, fmt.Errorf("list playlist: %w", err)
	}

	return types.NewPartySnapshot(party, participants, playback, playlist), nil
}

// ReserveSeat claims seatId for a new participant. The occupancy check and
// insert are a single repository transaction, so concurrent claims on the
// same seat yield exactly one winner and ErrSeatTaken for the rest.
func (cs *Coordinator) ReserveSeat(ctx context.Context, rawCode, seatId, displayName string) (database.Participant, error) {
	party, err := cs.resolveLiveParty(ctx, rawCode)
	if err != nil {
		return database.Participant{}, err
	}
	if party.SeatLocked {
		return database.Participant{}, ErrSeatLocked
	}
	if !seatmap.Build(party.MaxSeats).Contains(seatId) {
		return database.Participant{}, ErrUnknownSeat
	}

	name, ok := NormalizeDisplayName(displayName)
	if !ok {
		return database.Participant{}, ErrInvalidDisplayName
	}

	participant, err := cs.db.ReserveSeat(ctx, database.ReserveSeatParams{
		PartyId:     party.Id,
		SeatId:      seatId,
		DisplayName: name,
	})
	if errors.Is(err, database.ErrSeatTaken) {
		cs.stats.Incr(stats.SeatConflicts)
		return participant, ErrSeatTaken
	}
	if err != nil {
		return participant, fmt.Errorf("reserve seat: %w", err)
	}

	cs.broadcast(ctx, party.Code, EventSeatUpdate, types.SeatUpdate{
		ParticipantId: participant.Id,
		SeatId:        participant.SeatId,
		DisplayName:   participant.DisplayName,
	})
	cs.emit(ctx, events.ParticipantJoined, party, &participant)

	return participant, nil
}

// EndParty marks the party ended on behalf of its host. Ending an ended
// party is a no-op.
func (cs *Coordinator) EndParty(ctx context.Context, rawCode, participantId string) error {
	party, err := cs.resolveParty(ctx, rawCode)
	if err != nil {
		return err
	}

	host, err := cs.presentParticipant(ctx, party.Id, participantId)
	if err != nil || !host.IsHost {
		return ErrNotHost
	}
	if party.Ended() {
		return nil
	}

	if err := cs.db.EndParty(ctx, party.Id); err != nil {
		return fmt.Errorf("end party: %w", err)
	}

	cs.log.Info().Str("code", party.Code).Msg("party ended")
	cs.broadcast(ctx, party.Code, EventPartyEnded, types.PartyEnded{Code: party.Code})
	cs.emit(ctx, events.PartyEnded, party, nil)

	return nil
}

func (cs *Coordinator) ListPublicParties(ctx context.Context) ([]types.PartySummary, error) {
	parties, err := cs.db.ListPublicParties(ctx, publicPartyLimit)
	if err != nil {
		return nil, fmt.Errorf("list public parties: %w", err)
	}

	return types.NewPartySummaries(parties), nil
}

// RecentMessages returns the newest chat messages oldest first. History
// stays readable after the party ends.
func (cs *Coordinator) RecentMessages(ctx context.Context, rawCode string) ([]types.ChatMessage, error) {
	party, err := cs.resolveParty(ctx, rawCode)
	if err != nil {
		return nil, err
	}

	messages, err := cs.db.ListRecentMessages(ctx, party.Id, cs.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return types.NewChatMessages(messages), nil
}

func (cs *Coordinator) Playback(ctx context.Context, rawCode string) (types.Playback, error) {
	party, err := cs.resolveParty(ctx, rawCode)
	if err != nil {
		return types.Playback{}, err
	}

	return cs.currentPlayback(ctx, party)
}

func (cs *Coordinator) currentPlayback(ctx context.Context, party database.Party) (types.Playback, error) {
	state, err := cs.db.GetPlayback(ctx, party.Id)
	if errors.Is(err, database.ErrNotFound) {
		return types.Playback{CurrentIndex: party.CurrentIndex}, nil
	}
	if err != nil {
		return types.Playback{}, fmt.Errorf("get playback: %w", err)
	}

	return types.NewPlayback(state, party.CurrentIndex), nil
}

// SetPlaybackAsHost applies a playback change authorized by the host's
// participant ID instead of a bound connection.
func (cs *Coordinator) SetPlaybackAsHost(ctx context.Context, rawCode, participantId string, change PlaybackPayload) (types.Playback, error) {
	party, err := cs.resolveLiveParty(ctx, rawCode)
	if err != nil {
		return types.Playback{}, err
	}

	host, err := cs.presentParticipant(ctx, party.Id, participantId)
	if err != nil || !host.IsHost {
		return types.Playback{}, ErrNotHost
	}

	return cs.applyPlayback(ctx, party, change)
}
