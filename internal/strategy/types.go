package strategy

import (
	"context"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// Strategy reacts to bus events and expresses order intents. Implementations
// hold their own rolling state (price history, last signal) between calls;
// the runtime guarantees at most one OnEvent call in flight per instance.
type Strategy interface {
	ID() string
	OnEvent(ev contracts.Event) ([]contracts.OrderIntent, error)
}

// Publisher is the only bus capability a strategy is handed: it can publish,
// but it cannot subscribe, set flags, or read flags. A strategy acts through
// the intents OnEvent returns; Publish exists for auxiliary signals
// (diagnostics, custom topics) a strategy author wants to emit directly.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// publisherOnly narrows a full bus.Bus down to Publisher. It deliberately
// does not embed bus.Bus: embedding would promote Subscribe/SetFlag/GetFlag
// too, letting a strategy recover full bus access with a type assertion.
type publisherOnly struct {
	b bus.Bus
}

// NewPublisher wraps b so only Publish is reachable through the result.
func NewPublisher(b bus.Bus) Publisher {
	return publisherOnly{b: b}
}

func (p publisherOnly) Publish(ctx context.Context, topic string, payload map[string]any) error {
	return p.b.Publish(ctx, topic, payload)
}

// Context bundles the services a strategy gets at construction time: a
// publish-only bus handle, read-only position and last-price references, and
// its own id. No other state machinery is exposed — a strategy can only act
// through the intents it returns from OnEvent, or Publish, never by
// subscribing or touching bus flags directly.
type Context struct {
	StrategyID string
	Bus        Publisher
	Positions  PositionView
	LastPrices LastPriceView
	Now        func() int64 // unix nanos; overridable in tests
}

// PositionView is a read-only lookup of a strategy's current net position.
type PositionView interface {
	Position(strategyID, symbol string) float64
}

// LastPriceView is a read-only lookup of the most recently observed trade
// price for a symbol.
type LastPriceView interface {
	LastPrice(symbol string) (float64, bool)
}

// Factory builds a strategy instance from a manifest entry's parameters.
type Factory func(cfg Config, ctx Context) (Strategy, error)
