package risk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/internal/killswitch"
)

// steppedClock lets tests move time forward deterministically.
type steppedClock struct{ now time.Time }

func (c *steppedClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, cfg Config, clock Clock) (*Manager, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	sw := killswitch.New(filepath.Join(t.TempDir(), "halt"), b)
	return NewManager(b, sw, cfg, clock, nil), b
}

func validIntent(id, symbol string, qty float64) contracts.OrderIntent {
	return contracts.OrderIntent{
		IntentID:   id,
		StrategyID: "alpha",
		Symbol:     symbol,
		Side:       contracts.SideBuy,
		OrderType:  contracts.OrderTypeMarket,
		Qty:        qty,
	}
}

func TestS1MarketBuyFlatStartIsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerOrderUSDCap = 100
	mgr, b := newTestManager(t, cfg, &steppedClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	mgr.observeTrade(contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100.0, Qty: 0.01, Side: contracts.SideBuy}.Fields())

	intent := validIntent("i1", "BTC/USDT", 0.5)
	if err := mgr.HandleIntent(ctx, intent); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}

	decisions := b.Published(contracts.TopicRiskDecision)
	if len(decisions) != 1 || decisions[0]["allowed"] != true {
		t.Fatalf("decisions=%v, want one allowed=true", decisions)
	}
	orders := b.Published(contracts.TopicOrdersAccepted)
	if len(orders) != 1 {
		t.Fatalf("orders=%v, want exactly one OrderEvent", orders)
	}
}

func TestS2CapBreachDenies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerOrderUSDCap = 40
	mgr, b := newTestManager(t, cfg, &steppedClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	mgr.observeTrade(contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100.0}.Fields())

	intent := validIntent("i1", "BTC/USDT", 0.5) // notional 50 > cap 40
	if err := mgr.HandleIntent(ctx, intent); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}

	decisions := b.Published(contracts.TopicRiskDecision)
	if len(decisions) != 1 || decisions[0]["allowed"] != false || decisions[0]["reason"] != "per_order_cap" {
		t.Fatalf("decisions=%v, want denied per_order_cap", decisions)
	}
	if orders := b.Published(contracts.TopicOrdersAccepted); len(orders) != 0 {
		t.Fatalf("orders=%v, want none", orders)
	}
}

func TestS3RateLimitSlidingWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrdersPerMinCap = 2
	cfg.PerOrderUSDCap = 1_000_000
	clock := &steppedClock{now: time.Unix(0, 0)}
	mgr, b := newTestManager(t, cfg, clock)
	ctx := context.Background()
	mgr.observeTrade(contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100.0}.Fields())

	for i, dt := range []time.Duration{0, 3 * time.Second, 9 * time.Second} {
		clock.now = time.Unix(0, 0).Add(dt)
		intent := validIntent(string(rune('a'+i)), "BTC/USDT", 0.1)
		if err := mgr.HandleIntent(ctx, intent); err != nil {
			t.Fatalf("HandleIntent: %v", err)
		}
	}

	decisions := b.Published(contracts.TopicRiskDecision)
	if len(decisions) != 3 {
		t.Fatalf("got %d decisions, want 3", len(decisions))
	}
	allowed := 0
	for _, d := range decisions {
		if d["allowed"] == true {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed=%d, want 2 (cap=2)", allowed)
	}
	if decisions[2]["reason"] != "rate_limit" {
		t.Fatalf("third decision reason=%v, want rate_limit", decisions[2]["reason"])
	}

	// 61 virtual seconds after the first admitted intent, a new one is allowed.
	clock.now = time.Unix(0, 0).Add(61 * time.Second)
	if err := mgr.HandleIntent(ctx, validIntent("d", "BTC/USDT", 0.1)); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}
	decisions = b.Published(contracts.TopicRiskDecision)
	if decisions[3]["allowed"] != true {
		t.Fatalf("fourth decision=%v, want allowed after window slides", decisions[3])
	}
}

func TestS4KillSwitchHaltsThenClears(t *testing.T) {
	cfg := DefaultConfig()
	mgr, b := newTestManager(t, cfg, &steppedClock{now: time.Unix(0, 0)})
	ctx := context.Background()
	mgr.observeTrade(contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100.0}.Fields())

	if err := mgr.Switch.Trip(ctx); err != nil {
		t.Fatalf("Trip: %v", err)
	}
	if err := mgr.HandleIntent(ctx, validIntent("i1", "BTC/USDT", 0.1)); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}
	decisions := b.Published(contracts.TopicRiskDecision)
	if decisions[0]["allowed"] != false || decisions[0]["reason"] != "halted" {
		t.Fatalf("decision=%v, want halted", decisions[0])
	}

	if err := mgr.Switch.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := mgr.HandleIntent(ctx, validIntent("i2", "BTC/USDT", 0.1)); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}
	decisions = b.Published(contracts.TopicRiskDecision)
	if decisions[1]["allowed"] != true {
		t.Fatalf("decision=%v, want allowed after clear", decisions[1])
	}
}

func TestMalformedIntentDeniedInvalidAndNeverPanics(t *testing.T) {
	cfg := DefaultConfig()
	mgr, b := newTestManager(t, cfg, &steppedClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	bad := contracts.OrderIntent{IntentID: "bad", StrategyID: "alpha", Symbol: "BTC/USDT", Side: contracts.SideBuy, OrderType: contracts.OrderTypeMarket, Qty: -1}
	if err := mgr.HandleIntent(ctx, bad); err != nil {
		t.Fatalf("HandleIntent: %v", err)
	}
	decisions := b.Published(contracts.TopicRiskDecision)
	if decisions[0]["allowed"] != false || decisions[0]["reason"] != "invalid" {
		t.Fatalf("decision=%v, want invalid", decisions[0])
	}
}
