package strategy

import "fmt"

var factories = map[string]Factory{
	"momentum":          NewMomentumStrategy,
	"grid":              NewGridStrategy,
	"ma_cross":          NewMACrossStrategy,
	"rsi":               NewRSIStrategy,
	"bollinger":         NewBollingerStrategy,
	"orderbook_imbalance": NewOrderBookImbalanceStrategy,
	"volume_profile":    NewVolumeProfileStrategy,
}

// Register adds or replaces the factory for a strategy type. Manifest
// entries whose type was never registered fail to load rather than silently
// no-op.
func Register(typ string, f Factory) {
	factories[typ] = f
}

func lookup(typ string) (Factory, error) {
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q", typ)
	}
	return f, nil
}
