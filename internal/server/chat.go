package server

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const (
	maxChatLength  = 200
	maxEmojiLength = 32
)

// speaker resolves the present participant a connection speaks for in the
// given room.
func (cs *Coordinator) speaker(ctx context.Context, c *Client, rawCode string) (database.Party, database.Participant, error) {
	binding, ok := cs.registry.Get(c.id)
	if !ok || binding.ParticipantId == "" {
		return database.Party{}, database.Participant{}, ErrNotJoined
	}

	party, err := cs.resolveLiveParty(ctx, rawCode)
	if err != nil {
		return party, database.Participant{}, err
	}
	if binding.PartyId != party.Id {
		return party, database.Participant{}, ErrNotJoined
	}

	participant, err := cs.presentParticipant(ctx, party.Id, binding.ParticipantId)
	if err != nil {
		return party, participant, ErrNotJoined
	}

	return party, participant, nil
}

// sendMessage persists and broadcasts a chat line. Over-long, empty and
// throttled messages are dropped without a reply.
func (cs *Coordinator) sendMessage(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[ChatPayload](msg)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" || utf8.RuneCountInString(text) > maxChatLength {
		return ErrInvalidPayload
	}

	party, participant, err := cs.speaker(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	if !cs.chat.Allow(c.id) {
		return ErrThrottled
	}

	m, err := cs.db.CreateMessage(ctx, database.CreateMessageParams{
		PartyId:       party.Id,
		ParticipantId: participant.Id,
		SeatId:        participant.SeatId,
		DisplayName:   participant.DisplayName,
		Text:          text,
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	cs.broadcast(ctx, party.Code, EventChatMessage, types.NewChatMessage(m))
	return nil
}

// sendReaction fans an emoji out to the room without persisting it.
func (cs *Coordinator) sendReaction(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[ReactionPayload](msg)
	if err != nil {
		return err
	}

	emoji := strings.TrimSpace(payload.Emoji)
	if emoji == "" || len(emoji) > maxEmojiLength {
		return ErrInvalidPayload
	}

	party, participant, err := cs.speaker(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	cs.broadcast(ctx, party.Code, EventReaction, types.Reaction{
		Emoji:       emoji,
		SeatId:      participant.SeatId,
		DisplayName: participant.DisplayName,
	})
	return nil
}
