// Package pubsub carries room broadcasts between coordinator processes.
package pubsub

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is one broadcast addressed to a room's subscribers.
type Envelope struct {
	Code    string          `json:"code"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// TargetParticipant restricts delivery to the connections bound to this participant.
	TargetParticipant string `json:"targetParticipant,omitempty"`
	// Evict unbinds and unsubscribes the targeted connections after delivery.
	Evict bool `json:"evict,omitempty"`
}

type DeliverFunc func(Envelope)

type Fabric interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers deliver for every envelope published on the fabric,
	// including those published by this process. Delivery stops when ctx is done.
	Subscribe(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// LocalFabric delivers envelopes synchronously inside a single process.
type LocalFabric struct {
	mu       sync.RWMutex
	handlers map[int]DeliverFunc
	next     int
}

func NewLocalFabric() *LocalFabric {
	return &LocalFabric{handlers: make(map[int]DeliverFunc)}
}

func (f *LocalFabric) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.RLock()
	handlers := make([]DeliverFunc, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}

	return nil
}

func (f *LocalFabric) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = deliver
	f.mu.Unlock()

	if ctx.Done() == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}()

	return nil
}

func (f *LocalFabric) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.handlers)
	return nil
}
