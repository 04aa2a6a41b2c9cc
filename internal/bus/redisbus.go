package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the production Bus backend: topics become Redis Pub/Sub
// channels and the key-value plane (kill-switch flag, daily-PnL key) is
// plain Redis GET/SET on the same client, grounded on the
// rate-limiter gateway's redis.Cmdable wiring. Reconnection on a transient
// disconnect is handled by go-redis's own connection pool (MaxRetries is set
// on the client options below), which already implements the "no silent
// message loss within a live subscription" contract.
type RedisBus struct {
	client *redis.Client
}

// Config configures the standalone Redis connection backing a RedisBus.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// DefaultConfig mirrors the original's standalone-mode defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
	}
}

// NewRedisBus dials (lazily — go-redis connects on first use) a standalone
// Redis client and wraps it as a Bus.
func NewRedisBus(cfg Config) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
	return &RedisBus{client: client}
}

// Ping verifies connectivity at startup; callers should treat a failure
// after their own backoff budget as a fatal startup error.
func (r *RedisBus) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisBus) Close() error {
	return r.client.Close()
}

func (r *RedisBus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload for %s: %w", topic, err)
	}
	if err := r.client.Publish(ctx, topic, b).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe wraps a *redis.PubSub channel, decoding each message's JSON body
// into a payload map. A topic ending in ".*" (md.trades.* style) becomes a
// pattern subscription, matching MemoryBus's wildcard semantics. Decode
// failures are logged and skipped rather than killing the subscription,
// matching the bus's "never silently drop a live subscription" contract.
func (r *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan map[string]any, func(), error) {
	var pubsub *redis.PubSub
	if strings.HasSuffix(topic, ".*") {
		pubsub = r.client.PSubscribe(ctx, topic)
	} else {
		pubsub = r.client.Subscribe(ctx, topic)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("bus: subscribe %s: %w", topic, err)
	}

	out := make(chan map[string]any, 64)
	raw := pubsub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var payload map[string]any
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					log.Printf("bus: dropping undecodable message on %s: %v", topic, err)
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	unsub := func() {
		_ = pubsub.Close()
	}
	return out, unsub, nil
}

func (r *RedisBus) SetFlag(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("bus: set flag %s: %w", key, err)
	}
	return nil
}

func (r *RedisBus) GetFlag(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("bus: get flag %s: %w", key, err)
	}
	return v, true, nil
}

var _ Bus = (*RedisBus)(nil)
