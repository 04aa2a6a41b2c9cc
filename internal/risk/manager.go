// Package risk implements the stateful gatekeeper between strategy intents
// and order acceptance: kill switch, rolling rate limit, per-order notional
// cap, and daily loss cap, in that fixed order.
package risk

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/internal/journal"
	"github.com/blackforestdev/njord-quant/internal/killswitch"
)

// DayPnLFlagKey is the bus flag the paper OMS (or an external reconciler)
// writes realized day PnL to, and the risk engine reads for the daily loss
// cap.
const DayPnLFlagKey = "risk.day_pnl"

// Config holds the risk engine's configurable caps.
type Config struct {
	OrdersPerMinCap int
	PerOrderUSDCap  float64
	DailyLossUSDCap float64
	DailyResetUTC   bool
}

// DefaultConfig returns conservative defaults suitable for paper trading.
func DefaultConfig() Config {
	return Config{
		OrdersPerMinCap: 60,
		PerOrderUSDCap:  10_000,
		DailyLossUSDCap: 1_000,
		DailyResetUTC:   true,
	}
}

// Manager is the risk engine: subscribes to strat.intent and md.trades.*,
// publishes exactly one RiskDecision per intent (and an OrderEvent when
// allowed), and journals every decision.
type Manager struct {
	Bus     bus.Bus
	Switch  *killswitch.Switch
	Config  Config
	Clock   Clock
	Journal *journal.Writer

	limiter *RateLimiter

	mu     sync.RWMutex
	prices map[string]float64

	stopReset chan struct{}
}

// NewManager wires a Manager. j may be nil to disable journaling (tests).
func NewManager(b bus.Bus, sw *killswitch.Switch, cfg Config, clock Clock, j *journal.Writer) *Manager {
	if clock == nil {
		clock = RealClock{}
	}
	return &Manager{
		Bus:     b,
		Switch:  sw,
		Config:  cfg,
		Clock:   clock,
		Journal: j,
		limiter: NewRateLimiter(cfg.OrdersPerMinCap, clock),
		prices:  make(map[string]float64),
	}
}

// Run subscribes to strat.intent and md.trades.* and dispatches until ctx
// is cancelled. Each topic gets its own case in the select loop, matching
// the "select-style multiplexing for multi-topic consumers" shape used throughout this codebase.
func (m *Manager) Run(ctx context.Context) error {
	intents, unsubIntents, err := m.Bus.Subscribe(ctx, contracts.TopicStrategyIntent)
	if err != nil {
		return fmt.Errorf("risk: subscribe %s: %w", contracts.TopicStrategyIntent, err)
	}
	defer unsubIntents()

	trades, unsubTrades, err := m.Bus.Subscribe(ctx, contracts.TopicMarketTradesWild)
	if err != nil {
		return fmt.Errorf("risk: subscribe %s: %w", contracts.TopicMarketTradesWild, err)
	}
	defer unsubTrades()

	if m.Config.DailyResetUTC {
		m.startDailyReset(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-intents:
			if !ok {
				return nil
			}
			m.handlePayload(ctx, payload)
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			m.observeTrade(payload)
		}
	}
}

func (m *Manager) handlePayload(ctx context.Context, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("risk: recovered panic handling intent: %v", r)
		}
	}()

	intent, err := contracts.OrderIntentFromFields(payload)
	if err != nil {
		log.Printf("risk: malformed intent payload: %v", err)
		_ = m.denyInvalid(ctx, "", err)
		return
	}
	if err := m.HandleIntent(ctx, intent); err != nil {
		log.Printf("risk: HandleIntent error: %v", err)
	}
}

func (m *Manager) observeTrade(payload map[string]any) {
	t, err := contracts.TradeEventFromFields(payload)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.prices[t.Symbol] = t.Price
	m.mu.Unlock()
}

// ErrInvalidIntent marks a malformed intent, used only for logging/
// journaling — never returned up through the bus loop.
var ErrInvalidIntent = fmt.Errorf("risk: invalid intent")

// HandleIntent runs the fixed 4-step decision procedure and publishes
// exactly one RiskDecision, plus an OrderEvent when allowed.
func (m *Manager) HandleIntent(ctx context.Context, intent contracts.OrderIntent) error {
	if !intent.Valid() {
		return m.denyInvalid(ctx, intent.IntentID, fmt.Errorf("%w: %+v", ErrInvalidIntent, intent))
	}

	now := m.Clock.Now()
	tsNs := now.UnixNano()

	// Step 1: kill switch.
	if m.Switch != nil {
		tripped, err := m.Switch.Tripped(ctx)
		if err != nil {
			return fmt.Errorf("risk: kill switch probe: %w", err)
		}
		if tripped {
			return m.deny(ctx, intent, contracts.ReasonHalted, tsNs, nil)
		}
	}

	// Step 2: rolling rate limit. Allow admits (and consumes a slot) the
	// moment the symbol is under its per-minute cap, ahead of the notional
	// and daily-loss checks below — an intent that clears this step but is
	// denied at step 3 or 4 still counts against the cap. The limiter
	// bounds submission *attempts* per minute, not successful ones; only a
	// denial at this step itself leaves the window untouched.
	if !m.limiter.Allow(intent.Symbol) {
		return m.deny(ctx, intent, contracts.ReasonRateLimit, tsNs, map[string]any{
			"orders_per_min_cap": float64(m.Config.OrdersPerMinCap),
		})
	}

	// Step 3: per-order notional cap.
	refPrice, ok := m.referencePrice(intent)
	if !ok {
		return m.deny(ctx, intent, contracts.ReasonPerOrderCap, tsNs, map[string]any{
			"per_order_usd_cap": m.Config.PerOrderUSDCap,
		})
	}
	notional := intent.Qty * refPrice
	if notional > m.Config.PerOrderUSDCap {
		return m.deny(ctx, intent, contracts.ReasonPerOrderCap, tsNs, map[string]any{
			"per_order_usd_cap": m.Config.PerOrderUSDCap,
			"notional":          notional,
		})
	}

	// Step 4: daily loss cap.
	dayPnL := m.dayPnL(ctx)
	if dayPnL < -m.Config.DailyLossUSDCap {
		return m.deny(ctx, intent, contracts.ReasonDailyLossCap, tsNs, map[string]any{
			"daily_loss_usd_cap": m.Config.DailyLossUSDCap,
			"day_pnl":            dayPnL,
		})
	}

	decision := contracts.RiskDecision{
		IntentID: intent.IntentID,
		Allowed:  true,
		TsNs:     tsNs,
		Caps: map[string]any{
			"per_order_usd_cap": m.Config.PerOrderUSDCap,
		},
	}
	if err := m.publishDecision(ctx, decision); err != nil {
		return err
	}

	order := contracts.OrderEvent{
		IntentID:      intent.IntentID,
		Venue:         "paper",
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		OrderType:     intent.OrderType,
		Qty:           intent.Qty,
		LimitPrice:    intent.LimitPrice,
		HasLimit:      intent.HasLimit,
		ClientOrderID: contracts.ClientOrderIDFor(intent.IntentID),
		TsAcceptedNs:  tsNs,
		Meta:          intent.Meta,
	}
	if err := m.Bus.Publish(ctx, contracts.TopicOrdersAccepted, order.Fields()); err != nil {
		return fmt.Errorf("risk: publish order event: %w", err)
	}
	return nil
}

func (m *Manager) deny(ctx context.Context, intent contracts.OrderIntent, reason contracts.DenyReason, tsNs int64, caps map[string]any) error {
	decision := contracts.RiskDecision{
		IntentID: intent.IntentID,
		Allowed:  false,
		Reason:   reason,
		TsNs:     tsNs,
		Caps:     caps,
	}
	return m.publishDecision(ctx, decision)
}

func (m *Manager) denyInvalid(ctx context.Context, intentID string, err error) error {
	log.Printf("risk: %v", err)
	decision := contracts.RiskDecision{
		IntentID: intentID,
		Allowed:  false,
		Reason:   contracts.ReasonInvalid,
		TsNs:     m.Clock.Now().UnixNano(),
	}
	return m.publishDecision(ctx, decision)
}

func (m *Manager) publishDecision(ctx context.Context, d contracts.RiskDecision) error {
	if m.Journal != nil {
		if err := m.Journal.WriteLine(d.Fields()); err != nil {
			log.Printf("risk: journal write failed: %v", err)
		}
	}
	if err := m.Bus.Publish(ctx, contracts.TopicRiskDecision, d.Fields()); err != nil {
		return fmt.Errorf("risk: publish decision: %w", err)
	}
	return nil
}

// referencePrice implements the per-order notional cap's ref_price rule: last trade price
// if present, else the intent's limit price for limit orders, else
// undefined.
func (m *Manager) referencePrice(intent contracts.OrderIntent) (float64, bool) {
	m.mu.RLock()
	p, ok := m.prices[intent.Symbol]
	m.mu.RUnlock()
	if ok {
		return p, true
	}
	if intent.OrderType == contracts.OrderTypeLimit && intent.HasLimit {
		return intent.LimitPrice, true
	}
	return 0, false
}

func (m *Manager) dayPnL(ctx context.Context) float64 {
	if m.Bus == nil {
		return 0
	}
	v, ok, err := m.Bus.GetFlag(ctx, DayPnLFlagKey)
	if err != nil || !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// startDailyReset launches a goroutine that clears the day-PnL flag at each
// UTC midnight boundary, resolving the daily-loss-cap window
// ambiguity as a declared UTC-midnight rollover.
func (m *Manager) startDailyReset(ctx context.Context) {
	m.stopReset = make(chan struct{})
	go func() {
		for {
			now := m.Clock.Now().UTC()
			next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
			select {
			case <-time.After(next.Sub(now)):
				if err := m.Bus.SetFlag(ctx, DayPnLFlagKey, "0"); err != nil {
					log.Printf("risk: daily reset: %v", err)
				}
			case <-ctx.Done():
				return
			case <-m.stopReset:
				return
			}
		}
	}()
}
