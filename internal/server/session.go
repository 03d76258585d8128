package server

import (
	"context"
	"errors"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/roomcode"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/types"
)

// join subscribes the connection to the room's broadcast group. Anonymous
// connections listen only; a supplied participant ID that is present in the
// room binds the connection to that identity.
func (cs *Coordinator) join(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[JoinPayload](msg)
	if err != nil {
		return err
	}

	party, err := cs.resolveLiveParty(ctx, payload.Code)
	if err != nil {
		return err
	}

	if prev, ok := cs.registry.Get(c.id); ok && prev.Code != party.Code {
		cs.hub.Unsubscribe(prev.Code, c)
	}

	binding := Binding{Code: party.Code, PartyId: party.Id}
	cs.hub.Subscribe(party.Code, c)

	if payload.ParticipantId == "" {
		cs.registry.Bind(c.id, binding)
		return nil
	}

	participant, err := cs.presentParticipant(ctx, party.Id, payload.ParticipantId)
	if err != nil {
		cs.registry.Bind(c.id, binding)
		return err
	}

	binding.ParticipantId = participant.Id
	cs.registry.Bind(c.id, binding)
	cs.broadcast(ctx, party.Code, EventPresenceUpdate, types.NewPresence(participant, false))

	return nil
}

// leave unsubscribes the connection from the room it names and releases
// the seat of the participant it is bound to. A code other than the
// connection's own room is ignored. A second leave finds no participant and
// broadcasts nothing.
func (cs *Coordinator) leave(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[JoinPayload](msg)
	if err != nil {
		return err
	}

	code, ok := roomcode.Parse(payload.Code)
	if !ok {
		return ErrInvalidCode
	}
	if b, ok := cs.registry.Get(c.id); !ok || b.Code != code {
		return ErrNotJoined
	}

	binding, ok := cs.registry.ClearParticipant(c.id)
	if !ok {
		return ErrNotJoined
	}
	cs.hub.Unsubscribe(binding.Code, c)

	if binding.ParticipantId == "" {
		return nil
	}

	return cs.releaseSeat(ctx, binding)
}

// disconnect drops every trace of a closed connection and releases its
// seat unless another connection still speaks for the same participant.
func (cs *Coordinator) disconnect(c *Client) {
	cs.hub.Unregister(c)
	cs.chat.Forget(c.id)
	cs.stats.Decr(stats.ActiveConnections)

	binding, ok := cs.registry.Remove(c.id)
	if !ok || binding.ParticipantId == "" {
		return
	}
	// Connections closed by a process shutdown keep their seats so clients
	// can rejoin another instance with the same participant.
	if cs.closing.Load() {
		return
	}
	if len(cs.registry.ConnsForParticipant(binding.Code, binding.ParticipantId)) > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := cs.releaseSeat(ctx, binding); err != nil && !IsRejection(err) {
		cs.log.Warn().Err(err).Str("conn", c.id).Msg("failed to release seat on disconnect")
	}
}

// releaseSeat marks the participant left. Ended parties are included so
// their presence list empties as viewers go.
func (cs *Coordinator) releaseSeat(ctx context.Context, binding Binding) error {
	party, err := cs.resolveParty(ctx, binding.Code)
	if err != nil {
		return err
	}

	participant, err := cs.presentParticipant(ctx, party.Id, binding.ParticipantId)
	if err != nil {
		return err
	}

	changed, err := cs.db.MarkParticipantLeft(ctx, party.Id, participant.Id)
	if err != nil {
		return err
	}
	if changed {
		cs.broadcast(ctx, party.Code, EventPresenceUpdate, types.NewPresence(participant, true))
	}

	return nil
}

// reserveSeat is the channel variant of seat reservation. With a
// participant ID it confirms a seat reserved over HTTP; with a display name
// it claims the seat itself. Either way the caller gets a response.
func (cs *Coordinator) reserveSeat(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[SeatPayload](msg)
	if err != nil {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return err
	}

	var participant database.Participant
	if payload.ParticipantId != "" {
		participant, err = cs.confirmSeat(ctx, payload)
	} else {
		participant, err = cs.ReserveSeat(ctx, payload.Code, payload.SeatId, payload.DisplayName)
	}
	if err != nil {
		c.queueMessage(errorResponse(msg.Id, err))
		return err
	}

	if b, ok := cs.registry.Get(c.id); ok && b.PartyId == participant.PartyId {
		b.ParticipantId = participant.Id
		cs.registry.Bind(c.id, b)
	}

	c.queueMessage(NoErrOK(msg.Id, types.SeatReservation{
		ParticipantId: participant.Id,
		SeatId:        participant.SeatId,
	}))

	return nil
}

func (cs *Coordinator) confirmSeat(ctx context.Context, payload SeatPayload) (database.Participant, error) {
	party, err := cs.resolveLiveParty(ctx, payload.Code)
	if err != nil {
		return database.Participant{}, err
	}

	participant, err := cs.presentParticipant(ctx, party.Id, payload.ParticipantId)
	if err != nil {
		return participant, err
	}
	if participant.SeatId != payload.SeatId {
		return participant, ErrSeatTaken
	}

	cs.broadcast(ctx, party.Code, EventSeatUpdate, types.SeatUpdate{
		ParticipantId: participant.Id,
		SeatId:        participant.SeatId,
		DisplayName:   participant.DisplayName,
	})

	return participant, nil
}

// voiceJoin replies with voice credentials or a descriptive error. The
// participant defaults to the one bound to the connection.
func (cs *Coordinator) voiceJoin(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[JoinPayload](msg)
	if err != nil {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return err
	}

	if payload.ParticipantId == "" {
		if b, ok := cs.registry.Get(c.id); ok {
			payload.ParticipantId = b.ParticipantId
		}
	}

	creds, err := cs.voice.Issue(ctx, payload.Code, payload.ParticipantId)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.queueMessage(ErrServiceUnavailable(msg.Id, "voice provider timed out"))
		} else {
			c.queueMessage(errorResponse(msg.Id, err))
		}
		return err
	}

	c.queueMessage(NoErrOK(msg.Id, creds))
	return nil
}
