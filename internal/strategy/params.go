package strategy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// floatParam reads a numeric manifest parameter, accepting both YAML's
// float64 and int decodings, falling back to def when absent.
func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func intParam(params map[string]any, key string, def int) int {
	return int(floatParam(params, key, float64(def)))
}

// newIntentID embeds the strategy/symbol/sequence for readability in logs
// and journals, with a uuid suffix so ids never collide across restarts
// (seq resets to zero every time a strategy instance is reconstructed).
func newIntentID(strategyID, symbol string, seq int) string {
	return fmt.Sprintf("%s-%s-%d-%s", strategyID, symbol, seq, uuid.NewString())
}

// marketIntent builds a market-order intent from a BUY/SELL/HOLD decision;
// HOLD produces no intent.
func marketIntent(strategyID, intentID, symbol, action string, qty float64, nowNs int64, note string) (contracts.OrderIntent, bool) {
	var side contracts.Side
	switch action {
	case "BUY":
		side = contracts.SideBuy
	case "SELL":
		side = contracts.SideSell
	default:
		return contracts.OrderIntent{}, false
	}
	return contracts.OrderIntent{
		IntentID:   intentID,
		StrategyID: strategyID,
		Symbol:     symbol,
		Side:       side,
		OrderType:  contracts.OrderTypeMarket,
		Qty:        qty,
		TsNs:       nowNs,
		Meta:       map[string]any{"note": note},
	}, true
}
