package paperoms

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/internal/journal"
	"github.com/blackforestdev/njord-quant/internal/risk"
)

// Clock is the injected time source for fill timestamps, matching risk's
// Clock shape so tests can drive both engines off the same stepped clock
// (determinism: no wall-clock reads).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// OMS is the paper trading order management system: subscribes to
// orders.accepted, synthesizes fills deterministically, maintains FIFO
// positions, and journals fills and snapshots one file per symbol.
type OMS struct {
	Bus      bus.Bus
	Clock    Clock
	Journals *journal.Dir // nil disables journaling (tests)

	mu         sync.Mutex
	prices     map[string]float64
	books      map[string]*Book
	openOrders map[string]contracts.OrderEvent // client_order_id -> held order

	dayPnL   float64
	dayStart time.Time // UTC midnight boundary dayPnL accrues from
}

// NewOMS wires an OMS. journals may be nil to disable journaling (tests).
func NewOMS(b bus.Bus, clock Clock, journals *journal.Dir) *OMS {
	if clock == nil {
		clock = realClock{}
	}
	return &OMS{
		Bus:        b,
		Clock:      clock,
		Journals:   journals,
		prices:     make(map[string]float64),
		books:      make(map[string]*Book),
		openOrders: make(map[string]contracts.OrderEvent),
	}
}

// symbolFile turns a symbol like "BTC/USDT" into the filename-safe
// "BTC_USDT" segment used by per-symbol journal streams.
func symbolFile(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

func (o *OMS) fillJournal(symbol string) *journal.Writer {
	if o.Journals == nil {
		return nil
	}
	w, err := o.Journals.WriterFor(fmt.Sprintf("fills.%s.ndjson", symbolFile(symbol)))
	if err != nil {
		log.Printf("paperoms: open fills journal for %s: %v", symbol, err)
		return nil
	}
	return w
}

func (o *OMS) positionJournal(symbol string) *journal.Writer {
	if o.Journals == nil {
		return nil
	}
	w, err := o.Journals.WriterFor(fmt.Sprintf("positions.%s.ndjson", symbolFile(symbol)))
	if err != nil {
		log.Printf("paperoms: open positions journal for %s: %v", symbol, err)
		return nil
	}
	return w
}

// Run subscribes to orders.accepted and md.trades.* and processes both
// serially per symbol until ctx is cancelled, matching the "paper OMS
// processes orders.accepted serially; fills per symbol are totally
// ordered".
func (o *OMS) Run(ctx context.Context) error {
	orders, unsubOrders, err := o.Bus.Subscribe(ctx, contracts.TopicOrdersAccepted)
	if err != nil {
		return fmt.Errorf("paperoms: subscribe %s: %w", contracts.TopicOrdersAccepted, err)
	}
	defer unsubOrders()

	trades, unsubTrades, err := o.Bus.Subscribe(ctx, contracts.TopicMarketTradesWild)
	if err != nil {
		return fmt.Errorf("paperoms: subscribe %s: %w", contracts.TopicMarketTradesWild, err)
	}
	defer unsubTrades()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-orders:
			if !ok {
				return nil
			}
			o.handleOrderPayload(ctx, payload)
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			o.handleTradePayload(ctx, payload)
		}
	}
}

func (o *OMS) handleOrderPayload(ctx context.Context, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("paperoms: recovered panic handling order: %v", r)
		}
	}()
	ev, err := contracts.OrderEventFromFields(payload)
	if err != nil {
		log.Printf("paperoms: malformed order event: %v", err)
		return
	}
	if err := o.HandleOrder(ctx, ev); err != nil {
		log.Printf("paperoms: HandleOrder error: %v", err)
	}
}

func (o *OMS) handleTradePayload(ctx context.Context, payload map[string]any) {
	t, err := contracts.TradeEventFromFields(payload)
	if err != nil {
		return
	}
	if err := o.ObserveTrade(ctx, t); err != nil {
		log.Printf("paperoms: ObserveTrade error: %v", err)
	}
}

// HandleOrder synthesizes a fill for o per the market/limit fill rule
// or holds it open if no reference price is available yet.
func (o *OMS) HandleOrder(ctx context.Context, ev contracts.OrderEvent) error {
	o.mu.Lock()
	price, known := o.prices[ev.Symbol]
	o.mu.Unlock()

	fillPrice, fillable := o.resolveFillPrice(ev, price, known)
	if !fillable {
		o.mu.Lock()
		o.openOrders[ev.ClientOrderID] = ev
		o.mu.Unlock()
		return nil
	}
	return o.fill(ctx, ev, fillPrice)
}

// resolveFillPrice implements the deterministic fill-price rule.
func (o *OMS) resolveFillPrice(ev contracts.OrderEvent, lastPrice float64, known bool) (float64, bool) {
	switch ev.OrderType {
	case contracts.OrderTypeMarket:
		if known {
			return lastPrice, true
		}
		if ev.HasLimit {
			return ev.LimitPrice, true
		}
		return 0, false
	case contracts.OrderTypeLimit:
		if !known {
			return 0, false
		}
		crosses := (ev.Side == contracts.SideBuy && lastPrice <= ev.LimitPrice) ||
			(ev.Side == contracts.SideSell && lastPrice >= ev.LimitPrice)
		if !crosses {
			return 0, false
		}
		// Fill at the limit price, not the crossing trade price (spec.md
		// the chosen determinism default).
		return ev.LimitPrice, true
	default:
		return 0, false
	}
}

// ObserveTrade updates the last-trade-price cache for symbol and retries
// every held order on that symbol against the new price.
func (o *OMS) ObserveTrade(ctx context.Context, t contracts.TradeEvent) error {
	o.mu.Lock()
	o.prices[t.Symbol] = t.Price
	var candidates []contracts.OrderEvent
	for id, ev := range o.openOrders {
		if ev.Symbol == t.Symbol {
			candidates = append(candidates, ev)
			delete(o.openOrders, id)
		}
	}
	o.mu.Unlock()

	for _, ev := range candidates {
		price, fillable := o.resolveFillPrice(ev, t.Price, true)
		if !fillable {
			o.mu.Lock()
			o.openOrders[ev.ClientOrderID] = ev
			o.mu.Unlock()
			continue
		}
		if err := o.fill(ctx, ev, price); err != nil {
			return err
		}
	}
	return nil
}

func (o *OMS) fill(ctx context.Context, ev contracts.OrderEvent, price float64) error {
	tsFillNs := o.Clock.Now().UnixNano()

	fillEvent := contracts.FillEvent{
		OrderID:  ev.ClientOrderID,
		Symbol:   ev.Symbol,
		Side:     ev.Side,
		Qty:      ev.Qty,
		Price:    price,
		Fee:      0,
		TsFillNs: tsFillNs,
		Meta:     ev.Meta,
	}

	o.mu.Lock()
	book, ok := o.books[ev.Symbol]
	if !ok {
		book = NewBook(ev.Symbol)
		o.books[ev.Symbol] = book
	}
	delta := book.Fill(ev.Side, ev.Qty, price)
	qty, avgPrice := book.Snapshot()
	realizedPnL := book.RealizedPnL
	o.resetDayPnLIfRolledLocked(time.Unix(0, tsFillNs))
	o.dayPnL += delta
	dayPnL := o.dayPnL
	o.mu.Unlock()

	if w := o.fillJournal(ev.Symbol); w != nil {
		if err := w.WriteLine(fillEvent.Fields()); err != nil {
			log.Printf("paperoms: fill journal write failed: %v", err)
		}
	}
	if err := o.Bus.Publish(ctx, contracts.TopicFillsNew, fillEvent.Fields()); err != nil {
		return fmt.Errorf("paperoms: publish fill: %w", err)
	}

	snapshot := contracts.PositionSnapshot{
		Symbol:      ev.Symbol,
		Qty:         qty,
		AvgPrice:    avgPrice,
		RealizedPnL: realizedPnL,
		TsNs:        tsFillNs,
	}
	if w := o.positionJournal(ev.Symbol); w != nil {
		if err := w.WriteLine(snapshot.Fields()); err != nil {
			log.Printf("paperoms: position journal write failed: %v", err)
		}
	}
	if err := o.Bus.Publish(ctx, contracts.TopicPositionsSnap, snapshot.Fields()); err != nil {
		return fmt.Errorf("paperoms: publish position snapshot: %w", err)
	}

	if err := o.Bus.SetFlag(ctx, risk.DayPnLFlagKey, strconv.FormatFloat(dayPnL, 'f', -1, 64)); err != nil {
		log.Printf("paperoms: write day pnl flag: %v", err)
	}

	return nil
}

// resetDayPnLIfRolledLocked zeroes the running day-PnL accumulator once the
// UTC date has advanced past the last observed fill, mirroring the risk
// engine's UTC-midnight rollover (caller must hold o.mu).
func (o *OMS) resetDayPnLIfRolledLocked(at time.Time) {
	at = at.UTC()
	boundary := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	if o.dayStart.IsZero() {
		o.dayStart = boundary
		return
	}
	if boundary.After(o.dayStart) {
		o.dayStart = boundary
		o.dayPnL = 0
	}
}

// Snapshot returns the current signed qty and average price for symbol,
// for callers (e.g. strategy context) that need a read-only view.
func (o *OMS) Snapshot(symbol string) (qty, avgPrice float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.books[symbol]
	if !ok {
		return 0, 0
	}
	return b.Snapshot()
}
