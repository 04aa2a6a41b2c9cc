package strategy

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// GridStrategy emits BUY near a lower price bound and SELL near an upper
// bound, debouncing so it doesn't re-fire while price hovers near a bound.
type GridStrategy struct {
	id           string
	symbol       string
	lowerBound   float64
	upperBound   float64
	orderSize    float64
	minStepRatio float64
	now          func() int64

	lastAction string
	seq        int
}

// NewGridStrategy is a Factory for type "grid".
func NewGridStrategy(cfg Config, ctx Context) (Strategy, error) {
	return &GridStrategy{
		id:           cfg.ID,
		symbol:       cfg.Symbol,
		lowerBound:   floatParam(cfg.Parameters, "lower", 0),
		upperBound:   floatParam(cfg.Parameters, "upper", 0),
		orderSize:    floatParam(cfg.Parameters, "size", 0.001),
		minStepRatio: floatParam(cfg.Parameters, "step_ratio", 0.002),
		now:          ctx.Now,
	}, nil
}

func (g *GridStrategy) ID() string { return g.id }

func (g *GridStrategy) OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error) {
	if ev.Trade == nil || ev.Trade.Symbol != g.symbol {
		return nil, nil
	}
	price := ev.Trade.Price
	if price <= 0 {
		return nil, nil
	}

	if g.lastAction == "BUY" && price > g.lowerBound*(1+g.minStepRatio) {
		g.lastAction = ""
	}
	if g.lastAction == "SELL" && price < g.upperBound*(1-g.minStepRatio) {
		g.lastAction = ""
	}

	action := ""
	note := ""
	switch {
	case price <= g.lowerBound && g.lastAction != "BUY":
		action, note = "BUY", "grid buy at lower bound"
	case price >= g.upperBound && g.lastAction != "SELL":
		action, note = "SELL", "grid sell at upper bound"
	default:
		return nil, nil
	}
	g.lastAction = action

	g.seq++
	intent, ok := marketIntent(g.id, newIntentID(g.id, g.symbol, g.seq), g.symbol, action, g.orderSize, g.now(), note)
	if !ok {
		return nil, nil
	}
	return []contracts.OrderIntent{intent}, nil
}
