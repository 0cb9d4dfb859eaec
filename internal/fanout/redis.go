package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on a single Redis pub/sub channel shared by the
// whole fleet and by external producers.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisBus(addr, password, channel string, logger *slog.Logger) *RedisBus {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBus{client: c, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe consumes the channel until ctx is cancelled. Envelopes that do
// not parse are logged and skipped; a malformed publisher must not take the
// subscriber down.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("discarding malformed fanout envelope", "error", err)
				continue
			}
			handler(env)
		}
	}
}

func (b *RedisBus) Close() error { return b.client.Close() }
