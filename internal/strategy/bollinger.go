package strategy

import (
	"math"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// BollingerStrategy emits BUY when price touches the lower band and SELL
// when it touches the upper band.
type BollingerStrategy struct {
	id        string
	symbol    string
	period    int
	numStdDev float64
	size      float64
	now       func() int64

	prices     []float64
	middleBand float64
	upperBand  float64
	lowerBand  float64
	prevSignal string
	seq        int
}

// NewBollingerStrategy is a Factory for type "bollinger".
func NewBollingerStrategy(cfg Config, ctx Context) (Strategy, error) {
	period := intParam(cfg.Parameters, "period", 20)
	return &BollingerStrategy{
		id:         cfg.ID,
		symbol:     cfg.Symbol,
		period:     period,
		numStdDev:  floatParam(cfg.Parameters, "std_dev", 2.0),
		size:       floatParam(cfg.Parameters, "size", 0.001),
		now:        ctx.Now,
		prices:     make([]float64, 0, period),
		prevSignal: "HOLD",
	}, nil
}

func (s *BollingerStrategy) ID() string { return s.id }

func (s *BollingerStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != s.symbol {
		return nil, nil
	}
	price := ev.Trade.Price

	s.prices = append(s.prices, price)
	if len(s.prices) > s.period {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.period {
		return nil, nil
	}

	s.calculateBands()
	action, note := s.signal(price)
	if action == s.prevSignal {
		return nil, nil
	}
	s.prevSignal = action
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

func (s *BollingerStrategy) calculateBands() {
	sum := 0.0
	for _, p := range s.prices {
		sum += p
	}
	s.middleBand = sum / float64(len(s.prices))

	variance := 0.0
	for _, p := range s.prices {
		diff := p - s.middleBand
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(s.prices)))

	s.upperBand = s.middleBand + s.numStdDev*stdDev
	s.lowerBand = s.middleBand - s.numStdDev*stdDev
}

func (s *BollingerStrategy) signal(price float64) (string, string) {
	if price <= s.lowerBand {
		return "BUY", "bollinger lower breakout"
	}
	if price >= s.upperBand {
		return "SELL", "bollinger upper breakout"
	}
	return "HOLD", "bollinger middle band"
}
