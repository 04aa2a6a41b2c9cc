package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/internal/journal"
	"github.com/blackforestdev/njord-quant/internal/killswitch"
)

// HardMicroCapUSD is the unconfigurable ceiling layered on top of the risk
// engine's per_order_usd_cap, protecting against mis-configuration at the
// live order boundary.
const HardMicroCapUSD = 10.0

// Config gates the live-enablement path. Live mode requires both Env ==
// "live" and the process-wide NJORD_ENABLE_LIVE=1 environment flag.
type Config struct {
	Env string
}

// Clock is the injected time source for ts fields.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// LiveEnabledEnvVar is the process-wide live-trading enablement flag name.
const LiveEnabledEnvVar = "NJORD_ENABLE_LIVE"

// BalancePollInterval is how often Run fetches and republishes balances
// while live mode is enabled.
const BalancePollInterval = 30 * time.Second

func defaultEnvLive() bool {
	return os.Getenv(LiveEnabledEnvVar) == "1"
}

// OrderStreamer optionally augments a Venue with a push stream of order
// updates, used by Dispatcher.Run to keep broker.orders fresh without
// polling every order individually.
type OrderStreamer interface {
	Stream(ctx context.Context) (<-chan contracts.BrokerOrderUpdate, error)
}

// Dispatcher implements the broker dispatcher's 8-step procedure.
type Dispatcher struct {
	Bus     bus.Bus
	Switch  *killswitch.Switch
	Venue   Venue
	Config  Config
	Clock   Clock
	Journal *journal.Writer

	envLive func() bool // overridable in tests instead of os.Getenv

	mu       sync.Mutex
	prices   map[string]float64
	inflight map[string]bool
}

// NewDispatcher wires a Dispatcher. envLive reports whether
// NJORD_ENABLE_LIVE=1 in the process environment; pass nil to use the real
// environment.
func NewDispatcher(b bus.Bus, sw *killswitch.Switch, v Venue, cfg Config, clock Clock, j *journal.Writer, envLive func() bool) *Dispatcher {
	if clock == nil {
		clock = realClock{}
	}
	if envLive == nil {
		envLive = defaultEnvLive
	}
	return &Dispatcher{
		Bus: b, Switch: sw, Venue: v, Config: cfg, Clock: clock, Journal: j,
		envLive:  envLive,
		prices:   make(map[string]float64),
		inflight: make(map[string]bool),
	}
}

// Run subscribes to orders.accepted, orders.cancel, and md.trades.* until
// ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	accepted, unsubAccepted, err := d.Bus.Subscribe(ctx, contracts.TopicOrdersAccepted)
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", contracts.TopicOrdersAccepted, err)
	}
	defer unsubAccepted()

	cancels, unsubCancels, err := d.Bus.Subscribe(ctx, contracts.TopicOrdersCancel)
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", contracts.TopicOrdersCancel, err)
	}
	defer unsubCancels()

	trades, unsubTrades, err := d.Bus.Subscribe(ctx, contracts.TopicMarketTradesWild)
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", contracts.TopicMarketTradesWild, err)
	}
	defer unsubTrades()

	if d.liveEnabled() && d.Venue != nil {
		go d.pollBalances(ctx)
		if streamer, ok := d.Venue.(OrderStreamer); ok {
			go d.streamOrderUpdates(ctx, streamer)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-accepted:
			if !ok {
				return nil
			}
			d.handleAcceptedPayload(ctx, payload)
		case payload, ok := <-cancels:
			if !ok {
				return nil
			}
			d.handleCancelPayload(ctx, payload)
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			d.observeTrade(payload)
		}
	}
}

func (d *Dispatcher) handleAcceptedPayload(ctx context.Context, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broker: recovered panic handling order: %v", r)
		}
	}()
	ev, err := contracts.OrderEventFromFields(payload)
	if err != nil {
		log.Printf("broker: malformed order event: %v", err)
		return
	}
	if err := d.HandleAccepted(ctx, ev); err != nil {
		log.Printf("broker: HandleAccepted error: %v", err)
	}
}

func (d *Dispatcher) handleCancelPayload(ctx context.Context, payload map[string]any) {
	req, err := contracts.CancelRequestFromFields(payload)
	if err != nil {
		log.Printf("broker: malformed cancel request: %v", err)
		return
	}
	if d.Venue == nil {
		return
	}
	if err := d.Venue.Cancel(ctx, req.ClientOrderID); err != nil {
		log.Printf("broker: cancel %s failed: %v", req.ClientOrderID, err)
	}
}

func (d *Dispatcher) observeTrade(payload map[string]any) {
	t, err := contracts.TradeEventFromFields(payload)
	if err != nil {
		return
	}
	d.mu.Lock()
	d.prices[t.Symbol] = t.Price
	d.mu.Unlock()
}

func (d *Dispatcher) referencePrice(ev contracts.OrderEvent) (float64, bool) {
	d.mu.Lock()
	p, ok := d.prices[ev.Symbol]
	d.mu.Unlock()
	if ok {
		return p, true
	}
	if ev.OrderType == contracts.OrderTypeLimit && ev.HasLimit {
		return ev.LimitPrice, true
	}
	return 0, false
}

// HandleAccepted runs the 8-step live-dispatch procedure.
func (d *Dispatcher) HandleAccepted(ctx context.Context, ev contracts.OrderEvent) error {
	// Step 1: live-enablement gate.
	if !d.liveEnabled() {
		return d.dryRunEcho(ctx, ev)
	}

	// Step 3: re-check the kill switch at the order boundary.
	if d.Switch != nil {
		tripped, err := d.Switch.Tripped(ctx)
		if err != nil {
			return fmt.Errorf("broker: kill switch probe: %w", err)
		}
		if tripped {
			return d.publishHaltDecision(ctx, ev)
		}
	}

	// Step 4: hard micro-cap, independent of and on top of the risk engine's cap.
	refPrice, ok := d.referencePrice(ev)
	if !ok {
		// No reference price available to evaluate the hard cap: fail closed.
		return d.publishDecision(ctx, ev.IntentID, false, contracts.ReasonLiveMicroCap)
	}
	notional := ev.Qty * refPrice
	if notional > HardMicroCapUSD {
		return d.publishDecision(ctx, ev.IntentID, false, contracts.ReasonLiveMicroCap)
	}

	// Step 5: stable client-order-id, deterministic function of intent_id.
	clientOrderID := ev.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = contracts.ClientOrderIDFor(ev.IntentID)
	}

	req := contracts.BrokerOrderReq{
		ClientOrderID: clientOrderID,
		Symbol:        ev.Symbol,
		Side:          ev.Side,
		OrderType:     ev.OrderType,
		Qty:           ev.Qty,
		LimitPrice:    ev.LimitPrice,
		HasLimit:      ev.HasLimit,
	}

	// Step 6/7: place, with idempotent duplicate recovery.
	ack, err := d.Venue.Place(ctx, req)
	if err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			recovered, found, ferr := d.Venue.FetchOrder(ctx, clientOrderID)
			if ferr != nil {
				return fmt.Errorf("broker: fetch_order after duplicate: %w", ferr)
			}
			if !found {
				return ErrDuplicateClientOrderID
			}
			ack = recovered
		} else {
			return fmt.Errorf("broker: place order: %w", err)
		}
	}

	d.mu.Lock()
	d.inflight[clientOrderID] = true
	d.mu.Unlock()

	if d.Journal != nil {
		if err := d.Journal.WriteLine(ack.Fields()); err != nil {
			log.Printf("broker: journal write failed: %v", err)
		}
	}
	return d.Bus.Publish(ctx, contracts.TopicBrokerAcks, ack.Fields())
}

// dryRunEcho emits an echo message without ever contacting
// the venue.
func (d *Dispatcher) dryRunEcho(ctx context.Context, ev contracts.OrderEvent) error {
	echo := ev.Fields()
	echo["dry_run"] = true
	if d.Journal != nil {
		if err := d.Journal.WriteLine(echo); err != nil {
			log.Printf("broker: journal write failed: %v", err)
		}
	}
	return d.Bus.Publish(ctx, contracts.TopicBrokerEcho, echo)
}

func (d *Dispatcher) publishHaltDecision(ctx context.Context, ev contracts.OrderEvent) error {
	return d.publishDecision(ctx, ev.IntentID, false, contracts.ReasonHalted)
}

func (d *Dispatcher) publishDecision(ctx context.Context, intentID string, allowed bool, reason contracts.DenyReason) error {
	decision := contracts.RiskDecision{
		IntentID: intentID,
		Allowed:  allowed,
		Reason:   reason,
		TsNs:     d.Clock.Now().UnixNano(),
	}
	if d.Journal != nil {
		if err := d.Journal.WriteLine(decision.Fields()); err != nil {
			log.Printf("broker: journal write failed: %v", err)
		}
	}
	return d.Bus.Publish(ctx, contracts.TopicRiskDecision, decision.Fields())
}

// liveEnabled reports whether live mode is enabled: it requires both
// config.env=="live" AND the process-wide NJORD_ENABLE_LIVE=1 flag.
func (d *Dispatcher) liveEnabled() bool {
	return d.Config.Env == "live" && d.envLive()
}

// pollBalances republishes account balances to broker.balances on a fixed
// interval while live mode is enabled.
func (d *Dispatcher) pollBalances(ctx context.Context) {
	ticker := time.NewTicker(BalancePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balances, err := d.Venue.Balances(ctx)
			if err != nil {
				log.Printf("broker: fetch balances: %v", err)
				continue
			}
			for _, bal := range balances {
				if err := d.Bus.Publish(ctx, contracts.TopicBrokerBalances, bal.Fields()); err != nil {
					log.Printf("broker: publish balance: %v", err)
				}
			}
		}
	}
}

// streamOrderUpdates forwards a venue's push stream of order updates onto
// broker.orders, reconnecting for as long as ctx stays alive. A Stream call
// that returns an error is retried after a fixed one-second pause; a stream
// whose channel closes is re-subscribed at once rather than treated as a
// fatal condition. There is no exponential backoff here or in the venue's
// Stream, which closes its channel when a read fails.
func (d *Dispatcher) streamOrderUpdates(ctx context.Context, streamer OrderStreamer) {
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := streamer.Stream(ctx)
		if err != nil {
			log.Printf("broker: order update stream: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for update := range updates {
			if err := d.Bus.Publish(ctx, contracts.TopicBrokerOrders, update.Fields()); err != nil {
				log.Printf("broker: publish order update: %v", err)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}
