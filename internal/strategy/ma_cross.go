package strategy

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// MACrossStrategy emits BUY on a golden cross (fast MA crosses above slow
// MA) and SELL on a death cross.
type MACrossStrategy struct {
	id         string
	symbol     string
	fastPeriod int
	slowPeriod int
	size       float64
	now        func() int64

	prices     []float64
	fastMA     float64
	slowMA     float64
	prevSignal string
	seq        int
}

// NewMACrossStrategy is a Factory for type "ma_cross".
func NewMACrossStrategy(cfg Config, ctx Context) (Strategy, error) {
	slow := intParam(cfg.Parameters, "slow", 30)
	return &MACrossStrategy{
		id:         cfg.ID,
		symbol:     cfg.Symbol,
		fastPeriod: intParam(cfg.Parameters, "fast", 10),
		slowPeriod: slow,
		size:       floatParam(cfg.Parameters, "size", 0.001),
		now:        ctx.Now,
		prices:     make([]float64, 0, slow),
		prevSignal: "HOLD",
	}, nil
}

func (s *MACrossStrategy) ID() string { return s.id }

func (s *MACrossStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != s.symbol {
		return nil, nil
	}
	price := ev.Trade.Price

	s.prices = append(s.prices, price)
	if len(s.prices) > s.slowPeriod {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.slowPeriod {
		return nil, nil
	}

	oldFast, oldSlow := s.fastMA, s.slowMA
	s.fastMA = movingAverage(s.prices, s.fastPeriod)
	s.slowMA = movingAverage(s.prices, s.slowPeriod)

	action, note := s.detectCross(oldFast, oldSlow)
	if action == "" || action == s.prevSignal {
		return nil, nil
	}
	s.prevSignal = action

	s.seq++
	intent, ok := marketIntent(s.id, newIntentID(s.id, s.symbol, s.seq), s.symbol, action, s.size, s.now(), note)
	if !ok {
		return nil, nil
	}
	return []contracts.OrderIntent{intent}, nil
}

func (s *MACrossStrategy) detectCross(oldFast, oldSlow float64) (string, string) {
	if oldFast <= oldSlow && s.fastMA > s.slowMA {
		return "BUY", "golden cross"
	}
	if oldFast >= oldSlow && s.fastMA < s.slowMA {
		return "SELL", "death cross"
	}
	return "", ""
}

func movingAverage(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	sum := 0.0
	start := len(prices) - period
	for i := start; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}
