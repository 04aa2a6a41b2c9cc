package strategy

import (
	"math"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// RSIStrategy emits BUY when RSI dips below the oversold threshold and SELL
// when it rises above the overbought threshold.
type RSIStrategy struct {
	id                  string
	symbol              string
	period              int
	oversoldThreshold   float64
	overboughtThreshold float64
	size                float64
	now                 func() int64

	prices     []float64
	gains      []float64
	losses     []float64
	rsi        float64
	prevSignal string
	seq        int
}

// NewRSIStrategy is a Factory for type "rsi".
func NewRSIStrategy(cfg Config, ctx Context) (Strategy, error) {
	period := intParam(cfg.Parameters, "period", 14)
	return &RSIStrategy{
		id:                  cfg.ID,
		symbol:              cfg.Symbol,
		period:              period,
		oversoldThreshold:   floatParam(cfg.Parameters, "oversold", 30),
		overboughtThreshold: floatParam(cfg.Parameters, "overbought", 70),
		size:                floatParam(cfg.Parameters, "size", 0.001),
		now:                 ctx.Now,
		prices:              make([]float64, 0, period+1),
		gains:               make([]float64, 0, period),
		losses:              make([]float64, 0, period),
		prevSignal:          "HOLD",
	}, nil
}

func (s *RSIStrategy) ID() string { return s.id }

func (s *RSIStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != s.symbol {
		return nil, nil
	}
	price := ev.Trade.Price

	s.prices = append(s.prices, price)
	if len(s.prices) > s.period+1 {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.period+1 {
		return nil, nil
	}

	s.calculateRSI()
	action, note := s.signal()
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

func (s *RSIStrategy) calculateRSI() {
	s.gains = s.gains[:0]
	s.losses = s.losses[:0]

	for i := 1; i < len(s.prices); i++ {
		change := s.prices[i] - s.prices[i-1]
		if change > 0 {
			s.gains = append(s.gains, change)
			s.losses = append(s.losses, 0)
		} else {
			s.gains = append(s.gains, 0)
			s.losses = append(s.losses, math.Abs(change))
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < len(s.gains) && i < s.period; i++ {
		avgGain += s.gains[i]
		avgLoss += s.losses[i]
	}
	avgGain /= float64(s.period)
	avgLoss /= float64(s.period)

	if avgLoss == 0 {
		s.rsi = 100
		return
	}
	rs := avgGain / avgLoss
	s.rsi = 100 - (100 / (1 + rs))
}

func (s *RSIStrategy) signal() (string, string) {
	if s.rsi < s.oversoldThreshold {
		return "BUY", "rsi oversold"
	}
	if s.rsi > s.overboughtThreshold {
		return "SELL", "rsi overbought"
	}
	return "HOLD", "rsi neutral"
}
