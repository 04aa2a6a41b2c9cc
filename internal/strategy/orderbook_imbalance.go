package strategy

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// OrderBookImbalanceStrategy trades top-of-book depth imbalance: when bid
// size significantly exceeds ask size it signals buying pressure, and vice
// versa.
type OrderBookImbalanceStrategy struct {
	id                 string
	symbol             string
	imbalanceThreshold float64 // e.g. 1.5 means 50% more depth on one side
	size               float64
	now                func() int64

	lastSignal string
	seq        int
}

// NewOrderBookImbalanceStrategy is a Factory for type "orderbook_imbalance".
func NewOrderBookImbalanceStrategy(cfg Config, ctx Context) (Strategy, error) {
	return &OrderBookImbalanceStrategy{
		id:                 cfg.ID,
		symbol:             cfg.Symbol,
		imbalanceThreshold: floatParam(cfg.Parameters, "imbalance_threshold", 1.5),
		size:               floatParam(cfg.Parameters, "size", 0.001),
		now:                ctx.Now,
		lastSignal:         "HOLD",
	}, nil
}

func (s *OrderBookImbalanceStrategy) ID() string { return s.id }

func (s *OrderBookImbalanceStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Book == nil || ev.Book.Symbol != s.symbol {
		return nil, nil
	}
	bidQty, askQty := ev.Book.BidQty, ev.Book.AskQty
	if bidQty == 0 || askQty == 0 {
		return nil, nil
	}
	ratio := bidQty / askQty

	action := "HOLD"
	note := "book balanced"
	switch {
	case ratio >= s.imbalanceThreshold:
		action, note = "BUY", "book imbalance favors bids"
	case ratio <= 1.0/s.imbalanceThreshold:
		action, note = "SELL", "book imbalance favors asks"
	}
	if action == s.lastSignal {
		return nil, nil
	}
	s.lastSignal = action
	if action == "HOLD" {
		return nil, nil
	}

	s.seq++
	intent, ok := marketIntent(s.id, newIntentID(s.id, s.symbol, s.seq), s.symbol, action, s.size, s.now(), note)
	if !ok {
		return nil, nil
	}
	return []contracts.OrderIntent{intent}, nil
}
