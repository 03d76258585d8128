package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/types"
)

// setPlayback records the host's play, pause, seek or track change and
// broadcasts it with the server timestamp receivers extrapolate from.
func (cs *Coordinator) setPlayback(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[PlaybackPayload](msg)
	if err != nil {
		return err
	}

	party, _, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	_, err = cs.applyPlayback(ctx, party, payload)
	return err
}

func (cs *Coordinator) applyPlayback(ctx context.Context, party database.Party, change PlaybackPayload) (types.Playback, error) {
	if change.CurrentTime < 0 || math.IsNaN(change.CurrentTime) || math.IsInf(change.CurrentTime, 0) {
		return types.Playback{}, ErrInvalidPayload
	}

	state, index, err := cs.db.SetPlayback(ctx, database.SetPlaybackParams{
		PartyId:      party.Id,
		Playing:      change.Playing,
		CurrentTime:  change.CurrentTime,
		CurrentIndex: change.CurrentIndex,
	})
	if err != nil {
		return types.Playback{}, fmt.Errorf("set playback: %w", err)
	}

	playback := types.NewPlayback(state, index)
	cs.broadcast(ctx, party.Code, EventPlaybackState, playback)

	return playback, nil
}

// requestSync replies to the caller alone with the current playback state.
// Ended rooms still answer.
func (cs *Coordinator) requestSync(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[CodePayload](msg)
	if err != nil {
		return err
	}

	party, err := cs.resolveParty(ctx, payload.Code)
	if err != nil {
		return err
	}

	playback, err := cs.currentPlayback(ctx, party)
	if err != nil {
		return err
	}

	data, err := json.Marshal(playback)
	if err != nil {
		return err
	}

	c.queueMessage(&ServerMessage{
		Id:        msg.Id,
		Type:      EventPlaybackState,
		Timestamp: Now(),
		Data:      data,
	})
	return nil
}

// reorderPlaylist applies a full permutation of the playlist and broadcasts
// the re-read order.
func (cs *Coordinator) reorderPlaylist(ctx context.Context, c *Client, msg *ClientMessage) error {
	payload, err := decode[PlaylistPayload](msg)
	if err != nil {
		return err
	}

	party, _, err := cs.isHost(ctx, c, payload.Code)
	if err != nil {
		return err
	}

	items, err := cs.db.ReorderPlaylist(ctx, party.Id, payload.OrderedIds)
	if errors.Is(err, database.ErrInvalidOrder) {
		return err
	}
	if err != nil {
		return fmt.Errorf("reorder playlist: %w", err)
	}

	cs.broadcast(ctx, party.Code, EventPlaylist, types.PlaylistUpdate{
		Items:        types.NewPlaylist(items),
		CurrentIndex: party.CurrentIndex,
	})
	return nil
}
