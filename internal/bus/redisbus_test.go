package bus

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestRedisBusPublishSubscribe exercises broker-specific semantics
// (serialization, real Pub/Sub) against a live Redis instance. Gated behind
// NJORD_REDIS_TESTS=1 and bound to loopback only, since only
// backend-semantics tests may touch the production bus.
func TestRedisBusPublishSubscribe(t *testing.T) {
	if os.Getenv("NJORD_REDIS_TESTS") != "1" {
		t.Skip("set NJORD_REDIS_TESTS=1 to run against a local Redis instance")
	}

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:6379"
	rb := NewRedisBus(cfg)
	defer rb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rb.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	topic := "test.njord.redisbus"
	ch, unsub, err := rb.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := rb.Publish(ctx, topic, map[string]any{"a": float64(1)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-ch:
		if payload["a"] != float64(1) {
			t.Fatalf("got %v, want a=1", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := rb.SetFlag(ctx, "test.njord.flag", "1"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	v, ok, err := rb.GetFlag(ctx, "test.njord.flag")
	if err != nil || !ok || v != "1" {
		t.Fatalf("get flag: v=%q ok=%v err=%v", v, ok, err)
	}
}
