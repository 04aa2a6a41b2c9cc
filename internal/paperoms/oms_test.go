package paperoms

import (
	"context"
	"testing"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestS1MarketOrderFillsAtLastTradePrice(t *testing.T) {
	b := bus.NewMemoryBus()
	oms := NewOMS(b, fixedClock{time.Unix(1, 0)}, nil)
	ctx := context.Background()

	if err := oms.ObserveTrade(ctx, contracts.TradeEvent{Symbol: "BTC/USDT", Price: 100.0}); err != nil {
		t.Fatalf("ObserveTrade: %v", err)
	}

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 0.5, ClientOrderID: "njq-i1",
	}
	if err := oms.HandleOrder(ctx, order); err != nil {
		t.Fatalf("HandleOrder: %v", err)
	}

	fills := b.Published(contracts.TopicFillsNew)
	if len(fills) != 1 || fills[0]["price"] != 100.0 || fills[0]["qty"] != 0.5 {
		t.Fatalf("fills=%v, want one fill at price=100 qty=0.5", fills)
	}
	snaps := b.Published(contracts.TopicPositionsSnap)
	if len(snaps) != 1 || snaps[0]["qty"] != 0.5 || snaps[0]["avg_price"] != 100.0 || snaps[0]["realized_pnl"] != 0.0 {
		t.Fatalf("snapshot=%v, want qty=0.5 avg=100 realized=0", snaps[0])
	}
}

func TestMarketOrderHeldUntilPriceArrives(t *testing.T) {
	b := bus.NewMemoryBus()
	oms := NewOMS(b, fixedClock{time.Unix(1, 0)}, nil)
	ctx := context.Background()

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := oms.HandleOrder(ctx, order); err != nil {
		t.Fatalf("HandleOrder: %v", err)
	}
	if fills := b.Published(contracts.TopicFillsNew); len(fills) != 0 {
		t.Fatalf("expected no fill yet, got %v", fills)
	}

	if err := oms.ObserveTrade(ctx, contracts.TradeEvent{Symbol: "BTC/USDT", Price: 50.0}); err != nil {
		t.Fatalf("ObserveTrade: %v", err)
	}
	fills := b.Published(contracts.TopicFillsNew)
	if len(fills) != 1 || fills[0]["price"] != 50.0 {
		t.Fatalf("fills=%v, want retroactive fill at 50", fills)
	}
}

func TestLimitOrderFillsAtLimitPriceNotCrossingPrice(t *testing.T) {
	b := bus.NewMemoryBus()
	oms := NewOMS(b, fixedClock{time.Unix(1, 0)}, nil)
	ctx := context.Background()

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeLimit, Qty: 1, LimitPrice: 100, HasLimit: true,
		ClientOrderID: "njq-i1",
	}
	if err := oms.HandleOrder(ctx, order); err != nil {
		t.Fatalf("HandleOrder: %v", err)
	}
	// Last trade is 95 (crosses a buy limit of 100) but the fill price must
	// be the limit price, not 95.
	if err := oms.ObserveTrade(ctx, contracts.TradeEvent{Symbol: "BTC/USDT", Price: 95.0}); err != nil {
		t.Fatalf("ObserveTrade: %v", err)
	}
	fills := b.Published(contracts.TopicFillsNew)
	if len(fills) != 1 || fills[0]["price"] != 100.0 {
		t.Fatalf("fills=%v, want fill at limit price 100, not crossing price 95", fills)
	}
}

func TestRoundTripMetaSurvivesFromOrderToFill(t *testing.T) {
	b := bus.NewMemoryBus()
	oms := NewOMS(b, fixedClock{time.Unix(1, 0)}, nil)
	ctx := context.Background()
	_ = oms.ObserveTrade(ctx, contracts.TradeEvent{Symbol: "BTC/USDT", Price: 10})

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
		Meta: map[string]any{"algo": "twap", "leg": float64(2)},
	}
	if err := oms.HandleOrder(ctx, order); err != nil {
		t.Fatalf("HandleOrder: %v", err)
	}
	fills := b.Published(contracts.TopicFillsNew)
	meta, _ := fills[0]["meta"].(map[string]any)
	if meta["algo"] != "twap" || meta["leg"] != float64(2) {
		t.Fatalf("meta=%v did not round-trip", meta)
	}
}
