package strategy

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// MomentumStrategy emits BUY on a sharp upward trade-price jump and SELL on
// a sharp downward one, relative to the last observed trade.
type MomentumStrategy struct {
	id        string
	symbol    string
	size      float64
	threshold float64
	now       func() int64

	lastPrice float64
	seq       int
}

// NewMomentumStrategy is a Factory for type "momentum".
func NewMomentumStrategy(cfg Config, ctx Context) (Strategy, error) {
	threshold := floatParam(cfg.Parameters, "threshold", 0.001)
	size := floatParam(cfg.Parameters, "size", 0.001)
	return &MomentumStrategy{id: cfg.ID, symbol: cfg.Symbol, size: size, threshold: threshold, now: ctx.Now}, nil
}

func (s *MomentumStrategy) ID() string { return s.id }

func (s *MomentumStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != s.symbol {
		return nil, nil
	}
	price := ev.Trade.Price
	if price <= 0 {
		return nil, nil
	}
	if s.lastPrice == 0 {
		s.lastPrice = price
		return nil, nil
	}

	change := (price - s.lastPrice) / s.lastPrice
	s.lastPrice = price

	action := "HOLD"
	note := "momentum neutral"
	switch {
	case change >= s.threshold:
		action, note = "BUY", "momentum breakout up"
	case change <= -s.threshold:
		action, note = "SELL", "momentum breakout down"
	}

	s.seq++
	intent, ok := marketIntent(s.id, newIntentID(s.id, s.symbol, s.seq), s.symbol, action, s.size, s.now(), note)
	if !ok {
		return nil, nil
	}
	return []contracts.OrderIntent{intent}, nil
}
