// Package strategy implements the runtime that loads strategy instances
// from a manifest, dispatches bus events to them, and republishes the
// order intents they emit for the risk engine to judge.
package strategy

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

type instance struct {
	cfg      Config
	strategy Strategy
}

// positionTable and priceTable are the Manager's own bookkeeping, exposed
// to strategies read-only through Context.
type positionTable struct {
	mu   sync.RWMutex
	byID map[string]float64 // strategyID|symbol -> net qty
}

func newPositionTable() *positionTable { return &positionTable{byID: make(map[string]float64)} }

func (p *positionTable) Position(strategyID, symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[strategyID+"|"+symbol]
}

func (p *positionTable) apply(strategyID string, intent contracts.OrderIntent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strategyID + "|" + intent.Symbol
	if intent.Side == contracts.SideSell {
		p.byID[key] -= intent.Qty
	} else {
		p.byID[key] += intent.Qty
	}
}

type priceTable struct {
	mu     sync.RWMutex
	byName map[string]float64
}

func newPriceTable() *priceTable { return &priceTable{byName: make(map[string]float64)} }

func (p *priceTable) LastPrice(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byName[symbol]
	return v, ok
}

func (p *priceTable) set(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName[symbol] = price
}

// Manager loads a manifest of strategy instances, subscribes to every
// market-data topic, and dispatches each event to every loaded instance
// (each strategy ignores symbols it does not trade), recovering from a
// per-strategy panic so one misbehaving strategy never stops the others.
type Manager struct {
	Bus          bus.Bus
	ManifestPath string
	Now          func() int64

	mu         sync.RWMutex
	instances  map[string]instance
	positions  *positionTable
	prices     *priceTable
	reloadTick time.Duration
}

// NewManager wires a Manager against a manifest path. reloadTick of zero
// disables hot reload; Run only loads the manifest once.
func NewManager(b bus.Bus, manifestPath string, reloadTick time.Duration) *Manager {
	return &Manager{
		Bus:          b,
		ManifestPath: manifestPath,
		Now:          func() int64 { return time.Now().UnixNano() },
		instances:    make(map[string]instance),
		positions:    newPositionTable(),
		prices:       newPriceTable(),
		reloadTick:   reloadTick,
	}
}

// Run loads the manifest, subscribes to md.trades.*, md.book.* and md.ticker.*, and
// dispatches events until ctx is cancelled. When reloadTick is nonzero it
// periodically re-reads the manifest and applies the diff.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.reload(); err != nil {
		return fmt.Errorf("strategy: initial manifest load: %w", err)
	}

	trades, unsubTrades, err := m.Bus.Subscribe(ctx, contracts.TopicMarketTradesWild)
	if err != nil {
		return fmt.Errorf("strategy: subscribe trades: %w", err)
	}
	defer unsubTrades()

	books, unsubBooks, err := m.Bus.Subscribe(ctx, "md.book.*")
	if err != nil {
		return fmt.Errorf("strategy: subscribe books: %w", err)
	}
	defer unsubBooks()

	tickers, unsubTickers, err := m.Bus.Subscribe(ctx, "md.ticker.*")
	if err != nil {
		return fmt.Errorf("strategy: subscribe tickers: %w", err)
	}
	defer unsubTickers()

	var reloadC <-chan time.Time
	if m.reloadTick > 0 {
		ticker := time.NewTicker(m.reloadTick)
		defer ticker.Stop()
		reloadC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			m.handleTradePayload(ctx, payload)
		case payload, ok := <-books:
			if !ok {
				return nil
			}
			m.handleBookPayload(ctx, payload)
		case payload, ok := <-tickers:
			if !ok {
				return nil
			}
			m.handleTickerPayload(ctx, payload)
		case <-reloadC:
			if err := m.reload(); err != nil {
				log.Printf("strategy: manifest reload failed, keeping current instances: %v", err)
			}
		}
	}
}

func (m *Manager) handleTradePayload(ctx context.Context, payload map[string]any) {
	t, err := contracts.TradeEventFromFields(payload)
	if err != nil {
		log.Printf("strategy: malformed trade event: %v", err)
		return
	}
	m.prices.set(t.Symbol, t.Price)
	m.dispatch(ctx, contracts.TradeEventOf(t))
}

func (m *Manager) handleBookPayload(ctx context.Context, payload map[string]any) {
	b, err := contracts.BookEventFromFields(payload)
	if err != nil {
		log.Printf("strategy: malformed book event: %v", err)
		return
	}
	m.dispatch(ctx, contracts.BookEventOf(b))
}

func (m *Manager) handleTickerPayload(ctx context.Context, payload map[string]any) {
	tk, err := contracts.TickerEventFromFields(payload)
	if err != nil {
		log.Printf("strategy: malformed ticker event: %v", err)
		return
	}
	m.prices.set(tk.Symbol, tk.LastPrice)
	m.dispatch(ctx, contracts.TickerEventOf(tk))
}

// dispatch hands ev to every instance, recovering individual panics and
// publishing every intent returned.
func (m *Manager) dispatch(ctx context.Context, ev contracts.Event) {
	m.mu.RLock()
	instances := make([]instance, 0, len(m.instances))
	for _, inst := range m.instances {
		instances = append(instances, inst)
	}
	m.mu.RUnlock()

	for _, inst := range instances {
		intents := m.runOne(inst, ev)
		for _, intent := range intents {
			m.positions.apply(inst.cfg.ID, intent)
			if err := m.Bus.Publish(ctx, contracts.TopicStrategyIntent, intent.Fields()); err != nil {
				log.Printf("strategy: publish intent for %s: %v", inst.cfg.ID, err)
			}
		}
	}
}

func (m *Manager) runOne(inst instance, ev contracts.Event) (intents []contracts.OrderIntent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("strategy: recovered panic in %s: %v", inst.cfg.ID, r)
			intents = nil
		}
	}()
	out, err := inst.strategy.OnEvent(ev)
	if err != nil {
		log.Printf("strategy: %s OnEvent error: %v", inst.cfg.ID, err)
		return nil
	}
	return out
}

// reload re-reads the manifest, tearing down removed instances,
// instantiating new ones, and replacing changed ones. In-flight intents
// from a torn-down instance are unaffected: risk keys decisions off
// intent_id, not the strategy object.
func (m *Manager) reload() error {
	manifest, err := LoadManifest(m.ManifestPath)
	if err != nil {
		return err
	}

	next := make(map[string]instance, len(manifest.Strategies))
	for _, cfg := range manifest.Strategies {
		if !cfg.Enabled {
			continue
		}
		factory, err := lookup(cfg.Type)
		if err != nil {
			log.Printf("strategy: skipping %s: %v", cfg.ID, err)
			continue
		}

		m.mu.RLock()
		existing, ok := m.instances[cfg.ID]
		m.mu.RUnlock()
		if ok && configsEqual(existing.cfg, cfg) {
			next[cfg.ID] = existing
			continue
		}

		s, err := factory(cfg, Context{
			StrategyID: cfg.ID,
			Bus:        NewPublisher(m.Bus),
			Positions:  m.positions,
			LastPrices: m.prices,
			Now:        m.Now,
		})
		if err != nil {
			log.Printf("strategy: instantiate %s (%s): %v", cfg.ID, cfg.Type, err)
			continue
		}
		next[cfg.ID] = instance{cfg: cfg, strategy: s}
	}

	m.mu.Lock()
	m.instances = next
	m.mu.Unlock()
	return nil
}

func configsEqual(a, b Config) bool {
	if a.Type != b.Type || a.Symbol != b.Symbol || a.Enabled != b.Enabled || len(a.Parameters) != len(b.Parameters) {
		return false
	}
	for k, v := range a.Parameters {
		bv, ok := b.Parameters[k]
		if !ok || !reflect.DeepEqual(v, bv) {
			return false
		}
	}
	return true
}
