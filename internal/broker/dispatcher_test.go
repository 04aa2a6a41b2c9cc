package broker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/internal/killswitch"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeVenue struct {
	placeCalls int
	placeErr   error
	ack        contracts.BrokerOrderAck
	fetchAck   contracts.BrokerOrderAck
	fetchFound bool
	fetchErr   error
}

func (v *fakeVenue) Place(ctx context.Context, req contracts.BrokerOrderReq) (contracts.BrokerOrderAck, error) {
	v.placeCalls++
	if v.placeErr != nil {
		return contracts.BrokerOrderAck{}, v.placeErr
	}
	return v.ack, nil
}

func (v *fakeVenue) FetchOrder(ctx context.Context, clientOrderID string) (contracts.BrokerOrderAck, bool, error) {
	return v.fetchAck, v.fetchFound, v.fetchErr
}

func (v *fakeVenue) Cancel(ctx context.Context, clientOrderID string) error { return nil }

func (v *fakeVenue) Balances(ctx context.Context) ([]contracts.BalanceSnapshot, error) {
	return nil, nil
}

func newLiveDispatcher(t *testing.T, v Venue) (*Dispatcher, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	sw := killswitch.New(filepath.Join(t.TempDir(), "halt"), b)
	cfg := Config{Env: "live"}
	clock := fixedClock{time.Unix(1, 0)}
	d := NewDispatcher(b, sw, v, cfg, clock, nil, func() bool { return true })
	return d, b
}

func TestS6LiveMicroCapDenial(t *testing.T) {
	v := &fakeVenue{}
	d, b := newLiveDispatcher(t, v)
	ctx := context.Background()

	if err := b.Publish(ctx, contracts.TradeTopic("BTC/USDT"), contracts.TradeEvent{Symbol: "BTC/USDT", Price: 50000}.Fields()); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	d.observeTrade(map[string]any{"symbol": "BTC/USDT", "price": 50000.0, "ts_ns": int64(1)})

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := d.HandleAccepted(ctx, order); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if v.placeCalls != 0 {
		t.Fatalf("expected venue never contacted above micro-cap, placeCalls=%d", v.placeCalls)
	}
	decisions := b.Published(contracts.TopicRiskDecision)
	if len(decisions) != 1 || decisions[0]["allowed"] != false || decisions[0]["reason"] != string(contracts.ReasonLiveMicroCap) {
		t.Fatalf("decisions=%v, want one denial with reason=%s", decisions, contracts.ReasonLiveMicroCap)
	}
}

func TestS6LiveOrderUnderMicroCapIsPlaced(t *testing.T) {
	v := &fakeVenue{ack: contracts.BrokerOrderAck{ClientOrderID: "njq-i1", VenueOrderID: "v1", Symbol: "BTC/USDT", Status: "filled", TsAckNs: 2}}
	d, b := newLiveDispatcher(t, v)
	ctx := context.Background()
	d.observeTrade(map[string]any{"symbol": "BTC/USDT", "price": 5.0, "ts_ns": int64(1)})

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := d.HandleAccepted(ctx, order); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if v.placeCalls != 1 {
		t.Fatalf("placeCalls=%d, want 1", v.placeCalls)
	}
	acks := b.Published(contracts.TopicBrokerAcks)
	if len(acks) != 1 || acks[0]["venue_order_id"] != "v1" {
		t.Fatalf("acks=%v, want one ack for v1", acks)
	}
}

func TestS7DuplicateClientOrderIDRecoversAck(t *testing.T) {
	v := &fakeVenue{
		placeErr:   ErrDuplicateOrder,
		fetchFound: true,
		fetchAck:   contracts.BrokerOrderAck{ClientOrderID: "njq-i1", VenueOrderID: "v-existing", Symbol: "BTC/USDT", Status: "filled", TsAckNs: 3},
	}
	d, b := newLiveDispatcher(t, v)
	ctx := context.Background()
	d.observeTrade(map[string]any{"symbol": "BTC/USDT", "price": 5.0, "ts_ns": int64(1)})

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := d.HandleAccepted(ctx, order); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	acks := b.Published(contracts.TopicBrokerAcks)
	if len(acks) != 1 || acks[0]["venue_order_id"] != "v-existing" {
		t.Fatalf("acks=%v, want recovered ack for v-existing", acks)
	}
}

func TestS7DuplicateClientOrderIDNotFoundIsFatal(t *testing.T) {
	v := &fakeVenue{placeErr: ErrDuplicateOrder, fetchFound: false}
	d, _ := newLiveDispatcher(t, v)
	ctx := context.Background()
	d.observeTrade(map[string]any{"symbol": "BTC/USDT", "price": 5.0, "ts_ns": int64(1)})

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	err := d.HandleAccepted(ctx, order)
	if !errors.Is(err, ErrDuplicateClientOrderID) {
		t.Fatalf("err=%v, want ErrDuplicateClientOrderID", err)
	}
}

func TestDryRunNeverContactsVenue(t *testing.T) {
	v := &fakeVenue{}
	b := bus.NewMemoryBus()
	sw := killswitch.New(filepath.Join(t.TempDir(), "halt"), b)
	d := NewDispatcher(b, sw, v, Config{Env: "paper"}, fixedClock{time.Unix(1, 0)}, nil, func() bool { return true })
	ctx := context.Background()

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := d.HandleAccepted(ctx, order); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if v.placeCalls != 0 {
		t.Fatalf("placeCalls=%d, want 0 in dry-run mode", v.placeCalls)
	}
	echoes := b.Published(contracts.TopicBrokerEcho)
	if len(echoes) != 1 || echoes[0]["dry_run"] != true {
		t.Fatalf("echoes=%v, want one dry-run echo", echoes)
	}
}

func TestLiveHaltedByKillSwitchDeniesWithoutContactingVenue(t *testing.T) {
	v := &fakeVenue{}
	d, b := newLiveDispatcher(t, v)
	ctx := context.Background()
	if err := d.Switch.Trip(ctx); err != nil {
		t.Fatalf("trip: %v", err)
	}

	order := contracts.OrderEvent{
		IntentID: "i1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1, ClientOrderID: "njq-i1",
	}
	if err := d.HandleAccepted(ctx, order); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if v.placeCalls != 0 {
		t.Fatalf("placeCalls=%d, want 0 while halted", v.placeCalls)
	}
	decisions := b.Published(contracts.TopicRiskDecision)
	if len(decisions) != 1 || decisions[0]["reason"] != string(contracts.ReasonHalted) {
		t.Fatalf("decisions=%v, want one denial with reason=halted", decisions)
	}
}
