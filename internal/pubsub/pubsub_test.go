package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-watchparty/internal/testutil"
)

func TestLocalFabric(t *testing.T) {
	f := NewLocalFabric()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Envelope
	require.NoError(t, f.Subscribe(ctx, func(env Envelope) {
		got = append(got, env)
	}))

	env := Envelope{Code: "ABC123", Type: "chat:message", Payload: json.RawMessage(`{"text":"hi"}`)}
	require.NoError(t, f.Publish(context.Background(), env))

	require.Len(t, got, 1)
	assert.Equal(t, env, got[0])
}

func TestLocalFabricUnsubscribeOnCancel(t *testing.T) {
	f := NewLocalFabric()
	ctx, cancel := context.WithCancel(context.Background())

	delivered := 0
	require.NoError(t, f.Subscribe(ctx, func(Envelope) { delivered++ }))
	cancel()

	assert.Eventually(t, func() bool {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return len(f.handlers) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.Publish(context.Background(), Envelope{Code: "ABC123"}))
	assert.Zero(t, delivered)
}

func TestRedisFabric(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := NewRedisFabric(rdb, testutil.TestLogger(t))
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Envelope, 1)
	require.NoError(t, f.Subscribe(ctx, func(env Envelope) {
		received <- env
	}))

	env := Envelope{
		Code:              "ABC123",
		Type:              "party:kick",
		Payload:           json.RawMessage(`{"participantId":"p1"}`),
		TargetParticipant: "p1",
		Evict:             true,
	}
	require.NoError(t, f.Publish(context.Background(), env))

	select {
	case got := <-received:
		assert.Equal(t, env.Code, got.Code)
		assert.Equal(t, env.Type, got.Type)
		assert.JSONEq(t, string(env.Payload), string(got.Payload))
		assert.Equal(t, "p1", got.TargetParticipant)
		assert.True(t, got.Evict)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope was not delivered")
	}
}

func TestRedisFabricSkipsMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := NewRedisFabric(rdb, testutil.TestLogger(t))
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Envelope, 2)
	require.NoError(t, f.Subscribe(ctx, func(env Envelope) {
		received <- env
	}))

	mr.Publish(BroadcastChannel, "not json")
	require.NoError(t, f.Publish(context.Background(), Envelope{Code: "ABC123", Type: "seat:lock"}))

	select {
	case got := <-received:
		assert.Equal(t, "seat:lock", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope was not delivered")
	}
}
