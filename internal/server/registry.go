package server

import (
	"sync"

	"github.com/rs/zerolog"
)

// Binding ties a connection to the room it joined and, once resolved, the
// participant it speaks for.
type Binding struct {
	Code          string
	PartyId       string
	ParticipantId string
}

// Registry is the process-local map of connection handles to bindings.
// It is never authoritative: privileged operations re-check the
// participant against the repository.
type Registry struct {
	log      zerolog.Logger
	mu       sync.RWMutex
	bindings map[string]Binding
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:      log.With().Str("module", "server.registry").Logger(),
		bindings: make(map[string]Binding),
	}
}

func (r *Registry) Bind(connId string, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[connId] = b
	r.log.Debug().
		Str("conn", connId).
		Str("code", b.Code).
		Str("participant", b.ParticipantId).
		Msg("bound connection")
}

func (r *Registry) Get(connId string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[connId]
	return b, ok
}

// ClearParticipant drops the participant from a binding and returns the
// binding as it was before.
func (r *Registry) ClearParticipant(connId string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connId]
	if !ok {
		return b, false
	}

	cleared := b
	cleared.ParticipantId = ""
	r.bindings[connId] = cleared

	return b, true
}

func (r *Registry) Remove(connId string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connId]
	if ok {
		delete(r.bindings, connId)
		r.log.Debug().Str("conn", connId).Msg("removed connection")
	}

	return b, ok
}

// ConnsForParticipant lists the connections bound to participantId in the room.
func (r *Registry) ConnsForParticipant(code, participantId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []string
	for id, b := range r.bindings {
		if b.Code == code && b.ParticipantId == participantId {
			conns = append(conns, id)
		}
	}

	return conns
}
