package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus fans events out across processes via Redis pub/sub, a
// best-effort cross-service transport. In-process delivery still goes
// through an embedded InMemoryBus so a single component doesn't pay a
// network round trip to hear its own publishes.
type RedisBus struct {
	client *redis.Client
	local  *InMemoryBus

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewRedisBus connects to addr (e.g. from REDIS_URL) and wraps an
// InMemoryBus for same-process fan-out.
func NewRedisBus(addr string) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		local:  NewInMemoryBus(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload any) error {
	if err := b.local.Publish(ctx, topic, key, payload); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Key: key, Payload: payload})
	if err != nil {
		return err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.client.Publish(ctx2, topic, data).Err()
}

type envelope struct {
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// Subscribe registers a local handler and, on every call, opens a Redis
// subscription to topic with its own goroutine that passes each
// Redis-delivered message to this handler. Redis delivers this process's
// own publishes as well as those of other processes.
func (b *RedisBus) Subscribe(topic string, handler Handler) {
	b.local.Subscribe(topic, handler)

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	sub := b.client.Subscribe(ctx, topic)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		logger := log.With().Str("component", "event_bus").Str("topic", topic).Logger()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Warn().Err(err).Msg("failed to decode relayed event")
					continue
				}
				raw, _ := json.Marshal(env.Payload)
				if err := handler(ctx, Message{Topic: topic, Key: env.Key, Payload: raw, Timestamp: time.Now()}); err != nil {
					logger.Warn().Err(err).Msg("handler error on relayed event")
				}
			}
		}
	}()
}

// Close cancels all relay goroutines and closes the Redis client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.mu.Unlock()
	return b.client.Close()
}
