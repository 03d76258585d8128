package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPartyRepository keeps every record in process memory. It backs
// single-node development runs and the coordinator tests.
type MemoryPartyRepository struct {
	mu           sync.Mutex
	now          func() time.Time
	parties      map[string]*Party
	codes        map[string]string
	participants map[string]*Participant
	seq          map[string]int // insertion order of parties and participants
	playlists    map[string][]*PlaylistItem
	playback     map[string]*PlaybackState
	messages     map[string][]Message
}

func NewMemoryPartyRepository() *MemoryPartyRepository {
	return &MemoryPartyRepository{
		now:          func() time.Time { return time.Now().UTC() },
		parties:      make(map[string]*Party),
		codes:        make(map[string]string),
		participants: make(map[string]*Participant),
		seq:          make(map[string]int),
		playlists:    make(map[string][]*PlaylistItem),
		playback:     make(map[string]*PlaybackState),
		messages:     make(map[string][]Message),
	}
}

func (r *MemoryPartyRepository) Close() error {
	return nil
}

func (r *MemoryPartyRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryPartyRepository) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.codes[code]
	return ok, nil
}

func (r *MemoryPartyRepository) CreateParty(_ context.Context, params CreatePartyParams) (Party, Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[params.Code]; ok {
		return Party{}, Participant{}, ErrCodeTaken
	}

	now := r.now()
	party := &Party{
		Id:         uuid.NewString(),
		Code:       params.Code,
		Title:      params.Title,
		Visibility: params.Visibility,
		MaxSeats:   params.MaxSeats,
		Theme:      params.Theme,
		Status:     StatusLive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(params.Playlist) > 0 {
		party.ContentType = params.Playlist[0].ContentType
		party.ContentUrl = params.Playlist[0].ContentUrl
	}

	host := &Participant{
		Id:          uuid.NewString(),
		PartyId:     party.Id,
		SeatId:      params.HostSeat,
		DisplayName: params.HostName,
		IsHost:      true,
		JoinedAt:    now,
	}

	items := make([]*PlaylistItem, 0, len(params.Playlist))
	for i, item := range params.Playlist {
		items = append(items, &PlaylistItem{
			Id:          uuid.NewString(),
			PartyId:     party.Id,
			OrderIndex:  i,
			ContentType: item.ContentType,
			ContentUrl:  item.ContentUrl,
			Title:       item.Title,
		})
	}

	r.parties[party.Id] = party
	r.seq[party.Id] = len(r.seq)
	r.codes[party.Code] = party.Id
	r.addParticipantLocked(host)
	r.playlists[party.Id] = items
	r.playback[party.Id] = &PlaybackState{PartyId: party.Id, UpdatedAt: now}

	return *party, *host, nil
}

func (r *MemoryPartyRepository) GetPartyByCode(_ context.Context, code string) (Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.codes[code]
	if !ok {
		return Party{}, ErrNotFound
	}
	return *r.parties[id], nil
}

func (r *MemoryPartyRepository) ListPublicParties(_ context.Context, limit int) ([]PartySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var live []*Party
	for _, p := range r.parties {
		if p.Visibility == VisibilityPublic && !p.Ended() {
			live = append(live, p)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return r.seq[live[i].Id] > r.seq[live[j].Id]
	})
	if len(live) > limit {
		live = live[:limit]
	}

	summaries := make([]PartySummary, 0, len(live))
	for _, p := range live {
		summaries = append(summaries, PartySummary{
			Code:       p.Code,
			Title:      p.Title,
			Theme:      p.Theme,
			MaxSeats:   p.MaxSeats,
			SeatsTaken: len(r.presentLocked(p.Id)),
		})
	}

	return summaries, nil
}

func (r *MemoryPartyRepository) updateParty(partyId string, fn func(p *Party)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyId]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	p.UpdatedAt = r.now()

	return nil
}

func (r *MemoryPartyRepository) EndParty(_ context.Context, partyId string) error {
	return r.updateParty(partyId, func(p *Party) { p.Status = StatusEnded })
}

func (r *MemoryPartyRepository) SetMicLocked(_ context.Context, partyId string, locked bool) error {
	return r.updateParty(partyId, func(p *Party) { p.MicLocked = locked })
}

func (r *MemoryPartyRepository) SetSeatLocked(_ context.Context, partyId string, locked bool) error {
	return r.updateParty(partyId, func(p *Party) { p.SeatLocked = locked })
}

func (r *MemoryPartyRepository) GetPresentParticipant(_ context.Context, partyId, participantId string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantId]
	if !ok || p.PartyId != partyId || !p.Present() {
		return Participant{}, ErrNotFound
	}
	return *p, nil
}

func (r *MemoryPartyRepository) ListPresentParticipants(_ context.Context, partyId string) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.presentLocked(partyId), nil
}

func (r *MemoryPartyRepository) presentLocked(partyId string) []Participant {
	present := []Participant{}
	for _, p := range r.participants {
		if p.PartyId == partyId && p.Present() {
			present = append(present, *p)
		}
	}
	sort.Slice(present, func(i, j int) bool {
		return r.seq[present[i].Id] < r.seq[present[j].Id]
	})
	return present
}

func (r *MemoryPartyRepository) addParticipantLocked(p *Participant) {
	r.participants[p.Id] = p
	r.seq[p.Id] = len(r.seq)
}

func (r *MemoryPartyRepository) ReserveSeat(_ context.Context, params ReserveSeatParams) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.parties[params.PartyId]; !ok {
		return Participant{}, ErrNotFound
	}
	for _, p := range r.presentLocked(params.PartyId) {
		if p.SeatId == params.SeatId {
			return Participant{}, ErrSeatTaken
		}
	}

	p := &Participant{
		Id:          uuid.NewString(),
		PartyId:     params.PartyId,
		SeatId:      params.SeatId,
		DisplayName: params.DisplayName,
		JoinedAt:    r.now(),
	}
	r.addParticipantLocked(p)

	return *p, nil
}

func (r *MemoryPartyRepository) MarkParticipantLeft(_ context.Context, partyId, participantId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantId]
	if !ok || p.PartyId != partyId || !p.Present() {
		return false, nil
	}
	now := r.now()
	p.LeftAt = &now

	return true, nil
}

func (r *MemoryPartyRepository) SetParticipantMuted(_ context.Context, partyId, participantId string, muted bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantId]
	if !ok || p.PartyId != partyId || !p.Present() || p.IsHost {
		return false, nil
	}
	p.Muted = muted

	return true, nil
}

func (r *MemoryPartyRepository) GetPlayback(_ context.Context, partyId string) (PlaybackState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.playback[partyId]
	if !ok {
		return PlaybackState{}, ErrNotFound
	}
	return *state, nil
}

func (r *MemoryPartyRepository) SetPlayback(_ context.Context, params SetPlaybackParams) (PlaybackState, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	party, ok := r.parties[params.PartyId]
	if !ok {
		return PlaybackState{}, 0, ErrNotFound
	}

	now := r.now()
	state := &PlaybackState{
		PartyId:     params.PartyId,
		Playing:     params.Playing,
		CurrentTime: params.CurrentTime,
		UpdatedAt:   now,
	}
	r.playback[params.PartyId] = state

	if params.CurrentIndex != nil {
		party.CurrentIndex = clampIndex(*params.CurrentIndex, len(r.playlists[params.PartyId]))
		party.UpdatedAt = now
	}

	return *state, party.CurrentIndex, nil
}

func (r *MemoryPartyRepository) ListPlaylist(_ context.Context, partyId string) ([]PlaylistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.playlistLocked(partyId), nil
}

func (r *MemoryPartyRepository) playlistLocked(partyId string) []PlaylistItem {
	items := make([]PlaylistItem, 0, len(r.playlists[partyId]))
	for _, item := range r.playlists[partyId] {
		items = append(items, *item)
	}
	slices.SortFunc(items, func(a, b PlaylistItem) int {
		return a.OrderIndex - b.OrderIndex
	})
	return items
}

func (r *MemoryPartyRepository) ReorderPlaylist(_ context.Context, partyId string, orderedIds []string) ([]PlaylistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.playlists[partyId]
	ids := make([]string, 0, len(current))
	byId := make(map[string]*PlaylistItem, len(current))
	for _, item := range current {
		ids = append(ids, item.Id)
		byId[item.Id] = item
	}
	if !validOrder(ids, orderedIds) {
		return nil, ErrInvalidOrder
	}

	for i, id := range orderedIds {
		byId[id].OrderIndex = i
	}

	return r.playlistLocked(partyId), nil
}

func (r *MemoryPartyRepository) CreateMessage(_ context.Context, params CreateMessageParams) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.parties[params.PartyId]; !ok {
		return Message{}, ErrNotFound
	}

	m := Message{
		Id:            uuid.NewString(),
		PartyId:       params.PartyId,
		ParticipantId: params.ParticipantId,
		SeatId:        params.SeatId,
		DisplayName:   params.DisplayName,
		Text:          params.Text,
		CreatedAt:     r.now(),
	}
	r.messages[params.PartyId] = append(r.messages[params.PartyId], m)

	return m, nil
}

func (r *MemoryPartyRepository) ListRecentMessages(_ context.Context, partyId string, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.messages[partyId]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	return append([]Message{}, all...), nil
}
