package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/events"
	"github.com/npezzotti/go-watchparty/internal/pubsub"
	"github.com/npezzotti/go-watchparty/internal/roomcode"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const (
	eventTimeout        = 10 * time.Second
	disconnectTimeout   = 5 * time.Second
	drainTimeout        = 10 * time.Second
	defaultHistoryLimit = 50
	publicPartyLimit    = 8
	chatWindow          = time.Second
)

// VoiceService issues voice credentials and evicts identities from voice rooms.
type VoiceService interface {
	Issue(ctx context.Context, code, participantId string) (types.VoiceCredentials, error)
	RemoveParticipant(ctx context.Context, room, identity string) error
}

type Options struct {
	Log          zerolog.Logger
	Repo         database.PartyRepository
	Fabric       pubsub.Fabric
	Voice        VoiceService
	Events       events.Publisher
	Stats        stats.StatsProvider
	HistoryLimit int
}

// Coordinator owns the live side of every party: it validates inbound
// events against the repository and fans the resulting state out to the
// room's subscribers through the pub/sub fabric.
type Coordinator struct {
	log          zerolog.Logger
	db           database.PartyRepository
	fabric       pubsub.Fabric
	voice        VoiceService
	events       events.Publisher
	stats        stats.StatsProvider
	registry     *Registry
	hub          *Hub
	routes       map[string]handlerFunc
	chat         *chatLimiter
	historyLimit int
	now          func() time.Time
	baseCtx      context.Context
	cancel       context.CancelFunc
	conns        sync.WaitGroup
	closing      atomic.Bool
}

func NewCoordinator(opts Options) *Coordinator {
	baseCtx, cancel := context.WithCancel(context.Background())

	cs := &Coordinator{
		log:          opts.Log.With().Str("module", "server.coordinator").Logger(),
		db:           opts.Repo,
		fabric:       opts.Fabric,
		voice:        opts.Voice,
		events:       opts.Events,
		stats:        opts.Stats,
		registry:     NewRegistry(opts.Log),
		hub:          NewHub(opts.Log, opts.Stats),
		chat:         newChatLimiter(1, chatWindow),
		historyLimit: opts.HistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
		baseCtx:      baseCtx,
		cancel:       cancel,
	}
	if cs.historyLimit <= 0 {
		cs.historyLimit = defaultHistoryLimit
	}
	if cs.events == nil {
		cs.events = events.NewNoopPublisher(opts.Log)
	}
	cs.routes = cs.handlers()

	cs.stats.RegisterMetric(stats.ActiveConnections)
	cs.stats.RegisterMetric(stats.ActiveRooms)
	cs.stats.RegisterMetric(stats.SeatConflicts)

	return cs
}

// Start subscribes the coordinator to the broadcast fabric.
func (cs *Coordinator) Start() error {
	if err := cs.fabric.Subscribe(cs.baseCtx, cs.deliver); err != nil {
		return fmt.Errorf("subscribe fabric: %w", err)
	}

	cs.log.Info().Msg("coordinator started")
	return nil
}

// Shutdown closes every live connection, waits for their read loops to
// exit and stops fabric delivery. Seats held by those connections are kept.
func (cs *Coordinator) Shutdown() {
	cs.log.Info().Msg("received shutdown signal")
	cs.closing.Store(true)
	for _, c := range cs.hub.Clients() {
		c.stopClient()
	}

	drained := make(chan struct{})
	go func() {
		cs.conns.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(drainTimeout):
		cs.log.Warn().Msg("timed out waiting for connections to close")
	}

	cs.cancel()
}

// ServeConn takes ownership of an upgraded websocket connection.
func (cs *Coordinator) ServeConn(conn *websocket.Conn) error {
	if cs.closing.Load() {
		conn.Close()
		return ErrShuttingDown
	}

	id, err := shortid.Generate()
	if err != nil {
		return fmt.Errorf("generate connection id: %w", err)
	}

	c := NewClient(id, conn, cs, cs.log)
	cs.conns.Add(1)
	cs.hub.Register(c)
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Debug().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Msg("connection opened")

	go c.Write()
	go c.Read()

	return nil
}

type handlerFunc func(ctx context.Context, c *Client, msg *ClientMessage) error

func (cs *Coordinator) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		EventJoin:          cs.join,
		EventLeave:         cs.leave,
		EventReserveSeat:   cs.reserveSeat,
		EventChatMessage:   cs.sendMessage,
		EventReaction:      cs.sendReaction,
		EventPlaybackState: cs.setPlayback,
		EventRequestSync:   cs.requestSync,
		EventPlaylist:      cs.reorderPlaylist,
		EventMicLock:       cs.setMicLock,
		EventSeatLock:      cs.setSeatLock,
		EventMute:          cs.muteParticipant,
		EventUnmute:        cs.unmuteParticipant,
		EventKick:          cs.kickParticipant,
		EventLaunchGame:    cs.launchGame,
		EventVoiceJoin:     cs.voiceJoin,
	}
}

// handle runs one event to completion. Failures of fire-and-forget events
// are only logged; a panic is contained to the event that raised it.
func (cs *Coordinator) handle(c *Client, msg *ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			cs.log.Error().Interface("panic", r).Str("type", msg.Type).Str("conn", c.id).Msg("event handler panicked")
			cs.stats.CountEvent(msg.Type, stats.OutcomeFailed)
		}
	}()

	// Unknown types share one label so clients cannot grow the metric.
	label := msg.Type
	handler, ok := cs.routes[msg.Type]
	if !ok {
		label = "unknown"
		handler = unknownEvent
	}

	ctx, cancel := context.WithTimeout(cs.baseCtx, eventTimeout)
	defer cancel()

	err := handler(ctx, c, msg)
	switch {
	case err == nil:
		cs.stats.CountEvent(label, stats.OutcomeHandled)
	case IsRejection(err):
		cs.log.Debug().Err(err).Str("type", msg.Type).Str("conn", c.id).Msg("event rejected")
		cs.stats.CountEvent(label, stats.OutcomeRejected)
	default:
		cs.log.Warn().Err(err).Str("type", msg.Type).Str("conn", c.id).Msg("event failed")
		cs.stats.CountEvent(label, stats.OutcomeFailed)
	}
}

func unknownEvent(context.Context, *Client, *ClientMessage) error {
	return ErrUnknownEvent
}

func decode[T any](msg *ClientMessage) (T, error) {
	var payload T
	if len(msg.Data) == 0 {
		return payload, ErrInvalidPayload
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// broadcast publishes payload to every subscriber of the room.
func (cs *Coordinator) broadcast(ctx context.Context, code, eventType string, payload any) {
	cs.publish(ctx, pubsub.Envelope{Code: code, Type: eventType}, payload)
}

func (cs *Coordinator) publish(ctx context.Context, env pubsub.Envelope, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		cs.log.Error().Err(err).Str("type", env.Type).Msg("failed to encode broadcast")
		return
	}
	env.Payload = data

	if err := cs.fabric.Publish(ctx, env); err != nil {
		cs.log.Warn().Err(err).Str("code", env.Code).Str("type", env.Type).Msg("broadcast failed")
	}
}

// deliver hands a fabric envelope to the local members of its room.
func (cs *Coordinator) deliver(env pubsub.Envelope) {
	data, err := json.Marshal(&ServerMessage{
		Type:      env.Type,
		Timestamp: Now(),
		Data:      env.Payload,
	})
	if err != nil {
		cs.log.Error().Err(err).Str("type", env.Type).Msg("failed to serialize message")
		return
	}

	for _, c := range cs.hub.Members(env.Code) {
		if env.TargetParticipant != "" {
			b, ok := cs.registry.Get(c.id)
			if !ok || b.Code != env.Code || b.ParticipantId != env.TargetParticipant {
				continue
			}
		}

		c.queue(data)

		if env.Evict {
			cs.registry.ClearParticipant(c.id)
			cs.hub.Unsubscribe(env.Code, c)
		}
	}
}

func (cs *Coordinator) emit(ctx context.Context, eventType string, party database.Party, participant *database.Participant) {
	ev := events.Event{
		Type:       eventType,
		PartyCode:  party.Code,
		PartyId:    party.Id,
		OccurredAt: cs.now(),
	}
	if participant != nil {
		ev.ParticipantId = participant.Id
		ev.SeatId = participant.SeatId
	}

	if err := cs.events.Publish(ctx, ev); err != nil {
		cs.log.Warn().Err(err).Str("event", eventType).Msg("lifecycle event not published")
	}
}

// resolveParty validates the raw code before touching the repository.
func (cs *Coordinator) resolveParty(ctx context.Context, rawCode string) (database.Party, error) {
	code, ok := roomcode.Parse(rawCode)
	if !ok {
		return database.Party{}, ErrInvalidCode
	}

	party, err := cs.db.GetPartyByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return party, ErrPartyNotFound
	}
	if err != nil {
		return party, fmt.Errorf("get party: %w", err)
	}

	return party, nil
}

func (cs *Coordinator) resolveLiveParty(ctx context.Context, rawCode string) (database.Party, error) {
	party, err := cs.resolveParty(ctx, rawCode)
	if err != nil {
		return party, err
	}
	if party.Ended() {
		return party, ErrPartyEnded
	}
	return party, nil
}

func (cs *Coordinator) presentParticipant(ctx context.Context, partyId, participantId string) (database.Participant, error) {
	if participantId == "" {
		return database.Participant{}, ErrParticipantNotFound
	}

	p, err := cs.db.GetPresentParticipant(ctx, partyId, participantId)
	if errors.Is(err, database.ErrNotFound) {
		return p, ErrParticipantNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get participant: %w", err)
	}

	return p, nil
}
