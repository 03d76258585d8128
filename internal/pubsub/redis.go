package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const BroadcastChannel = "watchparty:broadcast"

// RedisFabric fans broadcasts out to every process subscribed to the
// same Redis channel.
type RedisFabric struct {
	log     zerolog.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return redis.NewClient(opt), nil
}

func NewRedisFabric(rdb *redis.Client, log zerolog.Logger) *RedisFabric {
	return &RedisFabric{
		log:     log.With().Str("module", "pubsub.redis").Logger(),
		rdb:     rdb,
		channel: BroadcastChannel,
	}
}

func (f *RedisFabric) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	return f.rdb.Publish(ctx, f.channel, data).Err()
}

// Subscribe returns once the subscription is confirmed by the server.
func (f *RedisFabric) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	go func() {
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					f.log.Warn().Err(err).Msg("dropping malformed envelope")
					continue
				}
				deliver(env)
			}
		}
	}()

	return nil
}

func (f *RedisFabric) Close() error {
	return f.rdb.Close()
}
