package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestManagerDispatchesTradesAndPublishesIntents(t *testing.T) {
	manifest := `
strategies:
  - id: mom1
    type: momentum
    symbol: BTC/USDT
    enabled: true
    parameters:
      threshold: 0.01
      size: 1.0
`
	path := writeManifest(t, manifest)
	b := bus.NewMemoryBus()
	mgr := NewManager(b, path, 0)
	mgr.Now = func() int64 { return 1 }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	// Give Run a moment to subscribe before publishing.
	time.Sleep(10 * time.Millisecond)

	if err := b.Publish(ctx, contracts.TradeTopic("BTC/USDT"), contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100}.Fields()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := b.Publish(ctx, contracts.TradeTopic("BTC/USDT"), contracts.TradeEvent{Symbol: "BTC/USDT", Price: 103}.Fields()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done

	intents := b.Published(contracts.TopicStrategyIntent)
	if len(intents) != 1 {
		t.Fatalf("intents=%v, want exactly one published intent", intents)
	}
	if intents[0]["strategy_id"] != "mom1" || intents[0]["side"] != "buy" {
		t.Fatalf("intent=%v, want strategy mom1 buy", intents[0])
	}
}

func TestManagerSkipsDisabledAndUnknownTypes(t *testing.T) {
	manifest := `
strategies:
  - id: off1
    type: momentum
    symbol: BTC/USDT
    enabled: false
  - id: bad1
    type: not_a_real_type
    symbol: BTC/USDT
    enabled: true
`
	path := writeManifest(t, manifest)
	b := bus.NewMemoryBus()
	mgr := NewManager(b, path, 0)

	if err := mgr.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	mgr.mu.RLock()
	n := len(mgr.instances)
	mgr.mu.RUnlock()
	if n != 0 {
		t.Fatalf("instances=%d, want 0 (disabled + unknown type both skipped)", n)
	}
}

func TestManagerHotReloadTearsDownRemovedInstance(t *testing.T) {
	path := writeManifest(t, `
strategies:
  - id: mom1
    type: momentum
    symbol: BTC/USDT
    enabled: true
`)
	b := bus.NewMemoryBus()
	mgr := NewManager(b, path, 0)
	if err := mgr.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	mgr.mu.RLock()
	_, ok := mgr.instances["mom1"]
	mgr.mu.RUnlock()
	if !ok {
		t.Fatalf("expected mom1 to be loaded")
	}

	if err := os.WriteFile(path, []byte("strategies: []\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := mgr.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	mgr.mu.RLock()
	_, stillThere := mgr.instances["mom1"]
	mgr.mu.RUnlock()
	if stillThere {
		t.Fatalf("expected mom1 to be torn down after manifest removed it")
	}
}
