package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/events"
	"github.com/npezzotti/go-watchparty/internal/pubsub"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/testutil"
	"github.com/npezzotti/go-watchparty/internal/types"
	"github.com/npezzotti/go-watchparty/internal/voice"
)

type fakeVoice struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeVoice) Issue(_ context.Context, code, participantId string) (types.VoiceCredentials, error) {
	if f.err != nil {
		return types.VoiceCredentials{}, f.err
	}
	return types.VoiceCredentials{Token: "token-" + participantId, RoomName: code}, nil
}

func (f *fakeVoice) RemoveParticipant(_ context.Context, room, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed = append(f.removed, room+"/"+identity)
	return nil
}

type testEnv struct {
	cs    *Coordinator
	repo  *database.MemoryPartyRepository
	voice *fakeVoice
	stats *stats.MockStatsUpdater
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", mock.Anything).Return()
	st.On("Incr", mock.Anything).Return()
	st.On("Decr", mock.Anything).Return()
	st.On("CountEvent", mock.Anything, mock.Anything).Return()

	env := &testEnv{
		repo:  database.NewMemoryPartyRepository(),
		voice: &fakeVoice{},
		stats: st,
	}
	env.cs = NewCoordinator(Options{
		Log:    testutil.TestLogger(t),
		Repo:   env.repo,
		Fabric: pubsub.NewLocalFabric(),
		Voice:  env.voice,
		Stats:  st,
	})
	require.NoError(t, env.cs.Start())
	t.Cleanup(env.cs.Shutdown)

	return env
}

func (e *testEnv) client(id string) *Client {
	c := &Client{
		id:   id,
		cs:   e.cs,
		log:  e.cs.log,
		send: make(chan []byte, sendBufferSize),
		stop: make(chan struct{}),
	}
	e.cs.hub.Register(c)
	return c
}

func (e *testEnv) createParty(t *testing.T) types.CreatedParty {
	t.Helper()

	created, err := e.cs.CreateParty(context.Background(), CreatePartyParams{
		Title:      "Movie night",
		Visibility: database.VisibilityPublic,
		MaxSeats:   24,
		Playlist: []database.PlaylistItemParams{
			{ContentType: "youtube", ContentUrl: "https://youtu.be/dQw4w9WgXcQ", Title: "first"},
			{ContentType: "mp4", ContentUrl: "https://cdn.example.com/second.mp4", Title: "second"},
		},
	})
	require.NoError(t, err)
	return created
}

func send(t *testing.T, e *testEnv, c *Client, id int, eventType string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	e.cs.handle(c, &ClientMessage{Id: id, Type: eventType, Data: data})
}

// drain returns every frame queued for the client so far.
func drain(t *testing.T, c *Client) []ServerMessage {
	t.Helper()

	var frames []ServerMessage
	for {
		select {
		case raw := <-c.send:
			var msg ServerMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			frames = append(frames, msg)
		default:
			return frames
		}
	}
}

func framesOfType(frames []ServerMessage, eventType string) []ServerMessage {
	var out []ServerMessage
	for _, f := range frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, msg ServerMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

// seatGuest reserves a seat over the channel and returns the new participant ID.
func seatGuest(t *testing.T, e *testEnv, c *Client, code, seat, name string) string {
	t.Helper()

	send(t, e, c, 1, EventJoin, JoinPayload{Code: code})
	send(t, e, c, 2, EventReserveSeat, SeatPayload{Code: code, SeatId: seat, DisplayName: name})

	responses := framesOfType(drain(t, c), EventResponse)
	require.Len(t, responses, 1)
	require.Equal(t, 200, responses[0].Response.ResponseCode, responses[0].Response.Error)

	data, err := json.Marshal(responses[0].Response.Data)
	require.NoError(t, err)
	var res types.SeatReservation
	require.NoError(t, json.Unmarshal(data, &res))

	return res.ParticipantId
}

func TestCreateParty(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	assert.Len(t, created.Code, 6)
	assert.Equal(t, "A-1", created.HostSeat)
	assert.NotEmpty(t, created.ParticipantId)

	snap, err := e.cs.Snapshot(context.Background(), created.Code)
	require.NoError(t, err)
	assert.Len(t, snap.SeatMap.Seats, 24)
	assert.Equal(t, 4, snap.SeatMap.Rows)
	assert.Equal(t, 6, snap.SeatMap.Cols)
	require.Len(t, snap.Participants, 1)
	assert.True(t, snap.Participants[0].IsHost)
	assert.Equal(t, "Host", snap.Participants[0].DisplayName)
	assert.Len(t, snap.Playlist, 2)
	assert.False(t, snap.Playback.Playing)
}

func TestEndToEndScenario(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})

	// the host already holds A-1
	_, err := e.cs.ReserveSeat(ctx, created.Code, "A-1", "guest one")
	assert.ErrorIs(t, err, ErrSeatTaken)

	guest1 := e.client("guest1")
	seatGuest(t, e, guest1, created.Code, "B-1", "guest one")

	guest2 := e.client("guest2")
	send(t, e, guest2, 1, EventJoin, JoinPayload{Code: created.Code})
	send(t, e, guest2, 2, EventReserveSeat, SeatPayload{Code: created.Code, SeatId: "B-1", DisplayName: "guest two"})
	conflict := framesOfType(drain(t, guest2), EventResponse)
	require.Len(t, conflict, 1)
	assert.Equal(t, 409, conflict[0].Response.ResponseCode)

	seatGuest(t, e, guest2, created.Code, "B-2", "guest two")
	drain(t, guest1)
	drain(t, host)

	zero := 0
	send(t, e, host, 3, EventPlaybackState, PlaybackPayload{Code: created.Code, Playing: true, CurrentTime: 0, CurrentIndex: &zero})
	for _, g := range []*Client{guest1, guest2} {
		states := framesOfType(drain(t, g), EventPlaybackState)
		require.Len(t, states, 1)
		playback := decodeData[types.Playback](t, states[0])
		assert.True(t, playback.Playing)
		assert.Equal(t, 0, playback.CurrentIndex)
		assert.InDelta(t, 0, playback.PositionAt(playback.UpdatedAt), 0.001)
	}

	snap, err := e.cs.Snapshot(ctx, created.Code)
	require.NoError(t, err)
	original := snap.Playlist

	send(t, e, host, 4, EventPlaylist, PlaylistPayload{
		Code:       created.Code,
		OrderedIds: []string{original[1].Id, original[0].Id},
	})
	for _, g := range []*Client{guest1, guest2} {
		updates := framesOfType(drain(t, g), EventPlaylist)
		require.Len(t, updates, 1)
		update := decodeData[types.PlaylistUpdate](t, updates[0])
		require.Len(t, update.Items, 2)
		assert.Equal(t, original[1].Id, update.Items[0].Id)
		assert.Equal(t, 0, update.Items[0].OrderIndex)
		assert.Equal(t, 1, update.Items[1].OrderIndex)
	}
}

func TestConcurrentSeatReservation(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	const attempts = 25
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.cs.ReserveSeat(context.Background(), created.Code, "C-4", "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		if assert.ErrorIs(t, err, ErrSeatTaken) {
			conflicts++
		}
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
	e.stats.AssertCalled(t, "Incr", stats.SeatConflicts)
}

func TestReserveSeatValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	tcases := []struct {
		name        string
		code        string
		seat        string
		displayName string
		expectedErr error
	}{
		{"malformed code", "abc", "B-1", "guest", ErrInvalidCode},
		{"unknown party", "ZZZZZZ", "B-1", "guest", ErrPartyNotFound},
		{"unknown seat", created.Code, "Z-9", "guest", ErrUnknownSeat},
		{"short display name", created.Code, "B-1", " g ", ErrInvalidDisplayName},
		{"long display name", created.Code, "B-1", "abcdefghijklmnopqrstu", ErrInvalidDisplayName},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.cs.ReserveSeat(ctx, tc.code, tc.seat, tc.displayName)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	send(t, e, host, 2, EventSeatLock, LockPayload{Code: created.Code, Locked: true})

	_, err := e.cs.ReserveSeat(ctx, created.Code, "B-1", "guest")
	assert.ErrorIs(t, err, ErrSeatLocked)

	guest := e.client("guest")
	send(t, e, guest, 1, EventReserveSeat, SeatPayload{Code: created.Code, SeatId: "B-1", DisplayName: "guest"})
	responses := framesOfType(drain(t, guest), EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, 403, responses[0].Response.ResponseCode)
}

func TestConfirmSeatReservedOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	watcher := e.client("watcher")
	send(t, e, watcher, 1, EventJoin, JoinPayload{Code: created.Code})

	p, err := e.cs.ReserveSeat(context.Background(), created.Code, "D-6", "late")
	require.NoError(t, err)
	drain(t, watcher)

	guest := e.client("guest")
	send(t, e, guest, 1, EventJoin, JoinPayload{Code: created.Code})
	send(t, e, guest, 2, EventReserveSeat, SeatPayload{Code: created.Code, SeatId: "D-6", ParticipantId: p.Id})

	updates := framesOfType(drain(t, watcher), EventSeatUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, types.SeatUpdate{ParticipantId: p.Id, SeatId: "D-6", DisplayName: "late"},
		decodeData[types.SeatUpdate](t, updates[0]))

	b, ok := e.cs.registry.Get(guest.id)
	require.True(t, ok)
	assert.Equal(t, p.Id, b.ParticipantId)

	send(t, e, guest, 3, EventReserveSeat, SeatPayload{Code: created.Code, SeatId: "D-5", ParticipantId: p.Id})
	responses := framesOfType(drain(t, guest), EventResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, 409, responses[1].Response.ResponseCode)
}

func TestJoinRejectsSilently(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)
	c := e.client("c1")

	send(t, e, c, 1, EventJoin, JoinPayload{Code: "bad!"})
	send(t, e, c, 2, EventJoin, JoinPayload{Code: "ZZZZZZ"})
	assert.Empty(t, drain(t, c))

	_, ok := e.cs.registry.Get(c.id)
	assert.False(t, ok)

	send(t, e, c, 3, EventJoin, JoinPayload{Code: created.Code, ParticipantId: "stranger"})
	assert.Empty(t, drain(t, c))
	b, ok := e.cs.registry.Get(c.id)
	require.True(t, ok)
	assert.Empty(t, b.ParticipantId)
	assert.Len(t, e.cs.hub.Members(created.Code), 1)
}

func TestJoinBroadcastsPresence(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	watcher := e.client("watcher")
	send(t, e, watcher, 1, EventJoin, JoinPayload{Code: created.Code})

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: strings.ToLower(created.Code), ParticipantId: created.ParticipantId})

	presence := framesOfType(drain(t, watcher), EventPresenceUpdate)
	require.Len(t, presence, 1)
	got := decodeData[types.Presence](t, presence[0])
	assert.Equal(t, created.ParticipantId, got.ParticipantId)
	assert.Equal(t, "A-1", got.SeatId)
	assert.True(t, got.IsHost)
	assert.False(t, got.Left)
}

func TestLeaveIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	watcher := e.client("watcher")
	send(t, e, watcher, 1, EventJoin, JoinPayload{Code: created.Code})

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-3", "guest")
	drain(t, watcher)

	send(t, e, guest, 3, EventLeave, JoinPayload{Code: created.Code, ParticipantId: guestId})
	send(t, e, guest, 4, EventLeave, JoinPayload{Code: created.Code, ParticipantId: guestId})

	presence := framesOfType(drain(t, watcher), EventPresenceUpdate)
	require.Len(t, presence, 1)
	got := decodeData[types.Presence](t, presence[0])
	assert.Equal(t, guestId, got.ParticipantId)
	assert.True(t, got.Left)

	assert.Empty(t, drain(t, guest))

	_, err := e.cs.ReserveSeat(context.Background(), created.Code, "B-3", "someone")
	assert.NoError(t, err, "seat is free again after leave")
}

func TestDisconnectReleasesSeat(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	watcher := e.client("watcher")
	send(t, e, watcher, 1, EventJoin, JoinPayload{Code: created.Code})

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-3", "guest")

	second := e.client("second-tab")
	send(t, e, second, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: guestId})
	drain(t, watcher)

	e.cs.disconnect(second)
	assert.Empty(t, framesOfType(drain(t, watcher), EventPresenceUpdate), "another tab still holds the seat")

	e.cs.disconnect(guest)
	presence := framesOfType(drain(t, watcher), EventPresenceUpdate)
	require.Len(t, presence, 1)
	assert.True(t, decodeData[types.Presence](t, presence[0]).Left)

	_, ok := e.cs.registry.Get(guest.id)
	assert.False(t, ok)
	assert.Len(t, e.cs.hub.Members(created.Code), 1)
	e.stats.AssertCalled(t, "Decr", stats.ActiveConnections)
}

func TestEndedRoomIsFinal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-1", "guest")
	send(t, e, guest, 3, EventChatMessage, ChatPayload{Code: created.Code, Text: "before the end"})
	drain(t, host)
	drain(t, guest)

	assert.ErrorIs(t, e.cs.EndParty(ctx, created.Code, guestId), ErrNotHost)
	require.NoError(t, e.cs.EndParty(ctx, created.Code, created.ParticipantId))
	require.NoError(t, e.cs.EndParty(ctx, created.Code, created.ParticipantId))

	ended := framesOfType(drain(t, guest), EventPartyEnded)
	require.Len(t, ended, 1)
	drain(t, host)

	_, err := e.cs.ReserveSeat(ctx, created.Code, "C-1", "late")
	assert.ErrorIs(t, err, ErrPartyEnded)

	send(t, e, host, 2, EventPlaybackState, PlaybackPayload{Code: created.Code, Playing: true, CurrentTime: 30})
	send(t, e, guest, 4, EventChatMessage, ChatPayload{Code: created.Code, Text: "after the end"})
	assert.Empty(t, drain(t, guest))

	playback, err := e.cs.Playback(ctx, created.Code)
	require.NoError(t, err)
	assert.False(t, playback.Playing)

	_, err = e.cs.SetPlaybackAsHost(ctx, created.Code, created.ParticipantId, PlaybackPayload{Playing: true})
	assert.ErrorIs(t, err, ErrPartyEnded)

	messages, err := e.cs.RecentMessages(ctx, created.Code)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "before the end", messages[0].Text)

	send(t, e, guest, 5, EventRequestSync, CodePayload{Code: created.Code})
	assert.Len(t, framesOfType(drain(t, guest), EventPlaybackState), 1)
}

func TestEndedRoomStillReleasesSeats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})

	leaver := e.client("leaver")
	leaverId := seatGuest(t, e, leaver, created.Code, "B-1", "leaver")
	closer := e.client("closer")
	seatGuest(t, e, closer, created.Code, "B-2", "closer")

	require.NoError(t, e.cs.EndParty(ctx, created.Code, created.ParticipantId))
	drain(t, host)

	send(t, e, leaver, 3, EventLeave, JoinPayload{Code: created.Code, ParticipantId: leaverId})
	e.cs.disconnect(closer)

	presence := framesOfType(drain(t, host), EventPresenceUpdate)
	assert.Len(t, presence, 2)

	snap, err := e.cs.Snapshot(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, string(database.StatusEnded), snap.Status)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, created.ParticipantId, snap.Participants[0].Id)
	e.stats.AssertCalled(t, "CountEvent", EventLeave, stats.OutcomeHandled)
}

func TestLeaveIgnoresOtherRooms(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)
	other := e.createParty(t)

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-1", "guest")

	for i, code := range []string{"ZZZZZZ", other.Code, "not a code"} {
		send(t, e, guest, 10+i, EventLeave, JoinPayload{Code: code, ParticipantId: guestId})
	}
	e.cs.handle(guest, &ClientMessage{Type: EventLeave})

	snap, err := e.cs.Snapshot(ctx, created.Code)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2)
	assert.Contains(t, e.cs.hub.Members(created.Code), guest)

	b, ok := e.cs.registry.Get(guest.id)
	require.True(t, ok)
	assert.Equal(t, guestId, b.ParticipantId)

	send(t, e, guest, 20, EventLeave, JoinPayload{Code: strings.ToLower(created.Code)})

	snap, err = e.cs.Snapshot(ctx, created.Code)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)
	assert.NotContains(t, e.cs.hub.Members(created.Code), guest)
}

func TestChatRateLimit(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	clock := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	e.cs.chat.now = func() time.Time { return clock }

	guest := e.client("guest")
	seatGuest(t, e, guest, created.Code, "B-1", "guest")

	send(t, e, guest, 3, EventChatMessage, ChatPayload{Code: created.Code, Text: "first"})
	clock = clock.Add(500 * time.Millisecond)
	send(t, e, guest, 4, EventChatMessage, ChatPayload{Code: created.Code, Text: "second"})

	chats := framesOfType(drain(t, guest), EventChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, "first", decodeData[types.ChatMessage](t, chats[0]).Text)

	clock = clock.Add(600 * time.Millisecond)
	send(t, e, guest, 5, EventChatMessage, ChatPayload{Code: created.Code, Text: "third"})
	assert.Len(t, framesOfType(drain(t, guest), EventChatMessage), 1)

	messages, err := e.cs.RecentMessages(context.Background(), created.Code)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestChatValidation(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	anon := e.client("anon")
	send(t, e, anon, 1, EventJoin, JoinPayload{Code: created.Code})
	send(t, e, anon, 2, EventChatMessage, ChatPayload{Code: created.Code, Text: "who am i"})
	assert.Empty(t, drain(t, anon))

	guest := e.client("guest")
	seatGuest(t, e, guest, created.Code, "B-1", "guest")

	send(t, e, guest, 3, EventChatMessage, ChatPayload{Code: created.Code, Text: "   "})
	send(t, e, guest, 4, EventChatMessage, ChatPayload{Code: created.Code, Text: strings.Repeat("x", 201)})
	assert.Empty(t, framesOfType(drain(t, guest), EventChatMessage))

	send(t, e, guest, 5, EventChatMessage, ChatPayload{Code: created.Code, Text: "  " + strings.Repeat("y", 200) + "  "})
	chats := framesOfType(drain(t, guest), EventChatMessage)
	require.Len(t, chats, 1)
	msg := decodeData[types.ChatMessage](t, chats[0])
	assert.Equal(t, strings.Repeat("y", 200), msg.Text)
	assert.Equal(t, "B-1", msg.SeatId)
	assert.Equal(t, "guest", msg.DisplayName)
}

func TestReaction(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	watcher := e.client("watcher")
	send(t, e, watcher, 1, EventJoin, JoinPayload{Code: created.Code})

	guest := e.client("guest")
	seatGuest(t, e, guest, created.Code, "B-1", "guest")
	drain(t, watcher)

	send(t, e, guest, 3, EventReaction, ReactionPayload{Code: created.Code, Emoji: "🔥"})
	send(t, e, guest, 4, EventReaction, ReactionPayload{Code: created.Code, Emoji: ""})

	reactions := framesOfType(drain(t, watcher), EventReaction)
	require.Len(t, reactions, 1)
	assert.Equal(t, types.Reaction{Emoji: "🔥", SeatId: "B-1", DisplayName: "guest"},
		decodeData[types.Reaction](t, reactions[0]))
}

func TestHostOnlyEventsIgnoreGuests(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	guest := e.client("guest")
	seatGuest(t, e, guest, created.Code, "B-1", "guest")

	send(t, e, guest, 3, EventMicLock, LockPayload{Code: created.Code, Locked: true})
	send(t, e, guest, 4, EventSeatLock, LockPayload{Code: created.Code, Locked: true})
	send(t, e, guest, 5, EventPlaybackState, PlaybackPayload{Code: created.Code, Playing: true, CurrentTime: 5})
	send(t, e, guest, 6, EventLaunchGame, GamePayload{Code: created.Code})
	send(t, e, guest, 7, EventKick, TargetPayload{Code: created.Code, TargetParticipantId: created.ParticipantId})

	assert.Empty(t, drain(t, guest))

	party, err := e.repo.GetPartyByCode(ctx, created.Code)
	require.NoError(t, err)
	assert.False(t, party.MicLocked)
	assert.False(t, party.SeatLocked)

	_, err = e.repo.GetPresentParticipant(ctx, party.Id, created.ParticipantId)
	assert.NoError(t, err)

	e.stats.AssertCalled(t, "CountEvent", EventMicLock, stats.OutcomeRejected)
}

func TestLocksBroadcast(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	drain(t, host)

	send(t, e, host, 2, EventMicLock, LockPayload{Code: created.Code, Locked: true})
	send(t, e, host, 3, EventSeatLock, LockPayload{Code: created.Code, Locked: true})

	frames := drain(t, host)
	require.Len(t, framesOfType(frames, EventVoiceMicLock), 1)
	require.Len(t, framesOfType(frames, EventSeatLockState), 1)
	assert.True(t, decodeData[types.LockState](t, framesOfType(frames, EventVoiceMicLock)[0]).Locked)

	snap, err := e.cs.Snapshot(context.Background(), created.Code)
	require.NoError(t, err)
	assert.True(t, snap.MicLocked)
	assert.True(t, snap.SeatLocked)
}

func TestMuteAndUnmute(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-1", "guest")
	drain(t, host)

	send(t, e, host, 2, EventMute, TargetPayload{Code: created.Code, TargetParticipantId: created.ParticipantId})
	assert.Empty(t, drain(t, host), "host cannot target itself")

	send(t, e, host, 3, EventMute, TargetPayload{Code: created.Code, TargetParticipantId: guestId})
	send(t, e, host, 4, EventUnmute, TargetPayload{Code: created.Code, TargetParticipantId: guestId})

	mutes := framesOfType(drain(t, guest), EventVoiceMute)
	require.Len(t, mutes, 2)
	assert.Equal(t, types.MuteState{ParticipantId: guestId, Muted: true}, decodeData[types.MuteState](t, mutes[0]))
	assert.Equal(t, types.MuteState{ParticipantId: guestId, Muted: false}, decodeData[types.MuteState](t, mutes[1]))
}

func TestKickParticipant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})

	guest := e.client("guest")
	guestId := seatGuest(t, e, guest, created.Code, "B-1", "guest")

	other := e.client("other")
	seatGuest(t, e, other, created.Code, "B-2", "other")
	drain(t, host)
	drain(t, guest)

	send(t, e, host, 2, EventKick, TargetPayload{Code: created.Code, TargetParticipantId: created.ParticipantId})
	assert.Empty(t, drain(t, host))

	send(t, e, host, 3, EventKick, TargetPayload{Code: created.Code, TargetParticipantId: guestId})

	guestFrames := drain(t, guest)
	require.Len(t, guestFrames, 1, "the kicked client only sees the kick")
	assert.Equal(t, EventPartyKick, guestFrames[0].Type)
	assert.Equal(t, guestId, decodeData[types.Kick](t, guestFrames[0]).ParticipantId)

	otherFrames := drain(t, other)
	assert.Empty(t, framesOfType(otherFrames, EventPartyKick))
	presence := framesOfType(otherFrames, EventPresenceUpdate)
	require.Len(t, presence, 1)
	assert.Equal(t, guestId, decodeData[types.Presence](t, presence[0]).ParticipantId)
	assert.True(t, decodeData[types.Presence](t, presence[0]).Left)

	b, ok := e.cs.registry.Get(guest.id)
	require.True(t, ok)
	assert.Empty(t, b.ParticipantId)
	assert.NotContains(t, e.cs.hub.Members(created.Code), guest)

	party, err := e.repo.GetPartyByCode(ctx, created.Code)
	require.NoError(t, err)
	_, err = e.repo.GetPresentParticipant(ctx, party.Id, guestId)
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.Equal(t, []string{created.Code + "/" + guestId}, e.voice.removed)

	send(t, e, host, 4, EventKick, TargetPayload{Code: created.Code, TargetParticipantId: guestId})
	assert.Empty(t, framesOfType(drain(t, other), EventPresenceUpdate), "kicking an absent participant is a no-op")
}

func TestRequestSyncIsPrivate(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	_, err := e.cs.SetPlaybackAsHost(context.Background(), created.Code, created.ParticipantId,
		PlaybackPayload{Playing: true, CurrentTime: 42})
	require.NoError(t, err)

	asker := e.client("asker")
	send(t, e, asker, 1, EventJoin, JoinPayload{Code: created.Code})
	bystander := e.client("bystander")
	send(t, e, bystander, 1, EventJoin, JoinPayload{Code: created.Code})

	send(t, e, asker, 7, EventRequestSync, CodePayload{Code: created.Code})

	states := framesOfType(drain(t, asker), EventPlaybackState)
	require.Len(t, states, 1)
	assert.Equal(t, 7, states[0].Id)
	playback := decodeData[types.Playback](t, states[0])
	assert.True(t, playback.Playing)
	assert.Equal(t, float64(42), playback.CurrentTime)

	assert.Empty(t, drain(t, bystander))
}

func TestSetPlaybackValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created := e.createParty(t)

	_, err := e.cs.SetPlaybackAsHost(ctx, created.Code, created.ParticipantId, PlaybackPayload{CurrentTime: -1})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = e.cs.SetPlaybackAsHost(ctx, created.Code, "someone", PlaybackPayload{CurrentTime: 1})
	assert.ErrorIs(t, err, ErrNotHost)

	outOfRange := 5
	playback, err := e.cs.SetPlaybackAsHost(ctx, created.Code, created.ParticipantId,
		PlaybackPayload{Playing: true, CurrentTime: 3, CurrentIndex: &outOfRange})
	require.NoError(t, err)
	assert.Equal(t, 0, playback.CurrentIndex)
}

func TestReorderRejectsPartialOrder(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	drain(t, host)

	snap, err := e.cs.Snapshot(context.Background(), created.Code)
	require.NoError(t, err)

	send(t, e, host, 2, EventPlaylist, PlaylistPayload{Code: created.Code, OrderedIds: []string{snap.Playlist[1].Id}})
	assert.Empty(t, drain(t, host))

	after, err := e.cs.Snapshot(context.Background(), created.Code)
	require.NoError(t, err)
	assert.Equal(t, snap.Playlist, after.Playlist)
}

func TestLaunchGame(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	drain(t, host)

	send(t, e, host, 2, EventLaunchGame, GamePayload{Code: created.Code})
	send(t, e, host, 3, EventLaunchGame, GamePayload{Code: created.Code, Game: "neon-rift"})
	send(t, e, host, 4, EventLaunchGame, GamePayload{Code: created.Code, Game: "../etc"})

	launches := framesOfType(drain(t, host), EventGameLaunch)
	require.Len(t, launches, 2)
	assert.Equal(t, "spacelight", decodeData[types.GameLaunch](t, launches[0]).Game)
	assert.Equal(t, "neon-rift", decodeData[types.GameLaunch](t, launches[1]).Game)
}

func TestVoiceJoin(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	drain(t, host)

	send(t, e, host, 2, EventVoiceJoin, JoinPayload{Code: created.Code})
	responses := framesOfType(drain(t, host), EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, 200, responses[0].Response.ResponseCode)
	assert.Equal(t, 2, responses[0].Id)

	e.voice.err = voice.ErrNotConfigured
	send(t, e, host, 3, EventVoiceJoin, JoinPayload{Code: created.Code})
	responses = framesOfType(drain(t, host), EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, 503, responses[0].Response.ResponseCode)
	assert.Equal(t, voice.ErrNotConfigured.Error(), responses[0].Response.Error)
}

func TestUnknownAndMalformedEvents(t *testing.T) {
	e := newTestEnv(t)
	c := e.client("c1")

	e.cs.handle(c, &ClientMessage{Type: "party:explode"})
	e.cs.handle(c, &ClientMessage{Type: EventJoin, Data: json.RawMessage(`{"code":`)})
	e.cs.handle(c, &ClientMessage{Type: EventJoin})

	assert.Empty(t, drain(t, c))
	e.stats.AssertCalled(t, "CountEvent", "unknown", stats.OutcomeRejected)
	e.stats.AssertNotCalled(t, "CountEvent", "party:explode", mock.Anything)
	assert.ErrorIs(t, unknownEvent(context.Background(), c, &ClientMessage{Type: "party:explode"}), ErrUnknownEvent)
}

func TestListPublicParties(t *testing.T) {
	e := newTestEnv(t)
	created := e.createParty(t)

	parties, err := e.cs.ListPublicParties(context.Background())
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, created.Code, parties[0].Code)
	assert.Equal(t, 1, parties[0].SeatsTaken)
	assert.Equal(t, 24, parties[0].MaxSeats)
}

func TestLifecycleEvents(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pub := &events.MockPublisher{}
	e.cs.events = pub

	var published []events.Event
	pub.On("Publish", mock.Anything, mock.AnythingOfType("events.Event")).
		Run(func(args mock.Arguments) {
			published = append(published, args.Get(1).(events.Event))
		}).
		Return(nil)

	created := e.createParty(t)

	host := e.client("host")
	send(t, e, host, 1, EventJoin, JoinPayload{Code: created.Code, ParticipantId: created.ParticipantId})
	guestId := seatGuest(t, e, e.client("guest"), created.Code, "B-1", "guest")
	send(t, e, host, 2, EventKick, TargetPayload{Code: created.Code, TargetParticipantId: guestId})
	require.NoError(t, e.cs.EndParty(ctx, created.Code, created.ParticipantId))

	var kinds []string
	for _, ev := range published {
		assert.Equal(t, created.Code, ev.PartyCode)
		assert.Equal(t, created.PartyId, ev.PartyId)
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []string{
		events.PartyCreated,
		events.ParticipantJoined,
		events.ParticipantKicked,
		events.PartyEnded,
	}, kinds)

	assert.Equal(t, created.ParticipantId, published[0].ParticipantId)
	assert.Equal(t, guestId, published[1].ParticipantId)
	assert.Equal(t, "B-1", published[1].SeatId)
	assert.Empty(t, published[3].ParticipantId)
}

func TestLifecycleEventFailureIsNotFatal(t *testing.T) {
	e := newTestEnv(t)

	pub := &events.MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)
	e.cs.events = pub

	created := e.createParty(t)
	assert.NotEmpty(t, created.Code)
	pub.AssertCalled(t, "Publish", mock.Anything, mock.Anything)
}
