package strategy

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// VolumeProfileStrategy trades on trade-size surges: a print whose qty is
// well above the rolling average combined with a price move signals a
// breakout in that direction. Quiet prints are ignored.
type VolumeProfileStrategy struct {
	id               string
	symbol           string
	volumeMultiplier float64
	size             float64
	volumePeriod     int
	now              func() int64

	qtys       []float64
	prevPrice  float64
	lastSignal string
	seq        int
}

// NewVolumeProfileStrategy is a Factory for type "volume_profile".
func NewVolumeProfileStrategy(cfg Config, ctx Context) (Strategy, error) {
	period := intParam(cfg.Parameters, "period", 20)
	return &VolumeProfileStrategy{
		id:               cfg.ID,
		symbol:           cfg.Symbol,
		volumeMultiplier: floatParam(cfg.Parameters, "volume_multiplier", 2.0),
		size:             floatParam(cfg.Parameters, "size", 0.001),
		volumePeriod:     period,
		now:              ctx.Now,
		qtys:             make([]float64, 0, period),
		lastSignal:       "HOLD",
	}, nil
}

func (s *VolumeProfileStrategy) ID() string { return s.id }

func (s *VolumeProfileStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != s.symbol {
		return nil, nil
	}
	price, qty := ev.Trade.Price, ev.Trade.Qty

	s.qtys = append(s.qtys, qty)
	if len(s.qtys) > s.volumePeriod {
		s.qtys = s.qtys[1:]
	}
	if len(s.qtys) < s.volumePeriod || s.prevPrice == 0 {
		s.prevPrice = price
		return nil, nil
	}

	sum := 0.0
	for _, q := range s.qtys {
		sum += q
	}
	avgQty := sum / float64(len(s.qtys))

	priceChange := price - s.prevPrice
	s.prevPrice = price

	if qty < avgQty*s.volumeMultiplier {
		return nil, nil
	}

	action := "HOLD"
	note := "quiet print"
	switch {
	case priceChange > 0:
		action, note = "BUY", "high-volume breakout up"
	case priceChange < 0:
		action, note = "SELL", "high-volume breakout down"
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
