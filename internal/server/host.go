package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/events"
	"github.com/npezzotti/go-watchparty/internal/pubsub"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const defaultGame = "spacelight"

var gameSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,31}$`)

// isHost is the moderation gate: the connection must be bound to a present
// participant of the live room who carries the host flag. Every host-only
// event calls it before mutating anything.
func (cs *Coordinator) isHost(ctx context.Context, c *Client, rawCode string) (database.Party, database.Participant, error) {
	party, participant, err := cs.speaker(ctx, c, rawCode)
	if err != nil {
		if errors.Is(err, ErrNotJoined) {
			return party, participant, ErrNotHost
		}
		return party, participant, err
	}
	if !participant.IsHost {
		return party, participant, ErrNotHost
	}

	return party, participant, nil
}

func (cs *Coordinator) setMicLock(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[LockPayload](msg)
	if err != nil {
		return err
	}

	party, _, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	if err := cs.db.SetMicLocked(ctx, party.Id, payload.Locked); err != nil {
		return fmt.Errorf("set mic lock: %w", err)
	}

	cs.broadcast(ctx, party.Code, EventVoiceMicLock, types.LockState{Locked: payload.Locked})
	return nil
}

func (cs *Coordinator) setSeatLock(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[LockPayload](msg)
	if err != nil {
		return err
	}

	party, _, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	if err := cs.db.SetSeatLocked(ctx, party.Id, payload.Locked); err != nil {
		return fmt.Errorf("set seat lock: %w", err)
	}

	cs.broadcast(ctx, party.Code, EventSeatLockState, types.LockState{Locked: payload.Locked})
	return nil
}

func (cs *Coordinator) muteParticipant(ctx context.Context, c *Client, msg *ClientMessage) error {
	return cs.setMuted(ctx, c, msg, true)
}

func (cs *Coordinator) unmuteParticipant(ctx context.Context, c *Client, msg *ClientMessage) error {
	return cs.setMuted(ctx, c, msg, false)
}

func (cs *Coordinator) setMuted(ctx context.Context, c *Client, msg *ClientMessage, muted bool) error {
	payload, err := decode[TargetPayload](msg)
	if err != nil {
		return err
	}

	party, host, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}
	if payload.TargetParticipantId == "" || payload.TargetParticipantId == host.Id {
		return ErrInvalidTarget
	}

	changed, err := cs.db.SetParticipantMuted(ctx, party.Id, payload.TargetParticipantId, muted)
	if err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	if !changed {
		return ErrInvalidTarget
	}

	cs.broadcast(ctx, party.Code, EventVoiceMute, types.MuteState{
		ParticipantId: payload.TargetParticipantId,
		Muted:         muted,
	})
	return nil
}

// kickParticipant frees the target's seat, tells only the target's
// connections to leave, drops the target from the voice room and then
// announces the departure to everyone else.
func (cs *Coordinator) kickParticipant(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[TargetPayload](msg)
	if err != nil {
		return err
	}

	party, host, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}
	if payload.TargetParticipantId == "" || payload.TargetParticipantId == host.Id {
		return ErrInvalidTarget
	}

	target, err := cs.presentParticipant(ctx, party.Id, payload.TargetParticipantId)
	if err != nil {
		return ErrInvalidTarget
	}

	changed, err := cs.db.MarkParticipantLeft(ctx, party.Id, target.Id)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	if !changed {
		return ErrInvalidTarget
	}

	cs.publish(ctx, pubsub.Envelope{
		Code:              party.Code,
		Type:              EventPartyKick,
		TargetParticipant: target.Id,
		Evict:             true,
	}, types.Kick{Code: party.Code, ParticipantId: target.Id})

	if cs.voice != nil {
		if err := cs.voice.RemoveParticipant(ctx, party.Code, target.Id); err != nil {
			cs.log.Debug().Err(err).Str("code", party.Code).Str("participant", target.Id).Msg("voice removal skipped")
		}
	}

	cs.broadcast(ctx, party.Code, EventPresenceUpdate, types.NewPresence(target, true))
	cs.emit(ctx, events.ParticipantKicked, party, &target)

	cs.log.Info().Str("code", party.Code).Str("participant", target.Id).Msg("participant kicked")
	return nil
}

// launchGame sends every client into the shared mini-game.
func (cs *Coordinator) launchGame(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[GamePayload](msg)
	if err != nil {
		return err
	}

	game := payload.Game
	if game == "" {
		game = defaultGame
	}
	if !gameSlugPattern.MatchString(game) {
		return ErrInvalidPayload
	}

	party, _, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	cs.broadcast(ctx, party.Code, EventGameLaunch, types.GameLaunch{Game: game})
	return nil
}
