package strategy

import (
	"testing"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

func fixedNow() int64 { return 1 }

func tradeEvent(symbol string, price, qty float64) contracts.Event {
	return contracts.TradeEventOf(contracts.TradeEvent{Symbol: symbol, Price: price, Qty: qty})
}

func TestMomentumStrategyEmitsOnSharpMove(t *testing.T) {
	s, err := NewMomentumStrategy(Config{ID: "m1", Symbol: "BTC/USDT", Parameters: map[string]any{"threshold": 0.01, "size": 1.0}}, Context{Now: fixedNow})
	if err != nil {
		t.Fatalf("NewMomentumStrategy: %v", err)
	}

	if intents, _ := s.OnEvent(tradeEvent("BTC/USDT", 100, 1)); len(intents) != 0 {
		t.Fatalf("first tick should seed lastPrice, got %v", intents)
	}

	intents, err := s.OnEvent(tradeEvent("BTC/USDT", 102, 1))
	if err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if len(intents) != 1 || intents[0].Side != contracts.SideBuy {
		t.Fatalf("intents=%+v, want single BUY", intents)
	}
}

func TestMomentumStrategyIgnoresOtherSymbols(t *testing.T) {
	s, _ := NewMomentumStrategy(Config{ID: "m1", Symbol: "BTC/USDT", Parameters: map[string]any{"threshold": 0.01}}, Context{Now: fixedNow})
	intents, err := s.OnEvent(tradeEvent("ETH/USDT", 200, 1))
	if err != nil || len(intents) != 0 {
		t.Fatalf("intents=%v err=%v, want none for unrelated symbol", intents, err)
	}
}

func TestGridStrategyBuysAtLowerBoundOnce(t *testing.T) {
	s, _ := NewGridStrategy(Config{ID: "g1", Symbol: "BTC/USDT", Parameters: map[string]any{"lower": 90.0, "upper": 110.0, "size": 1.0}}, Context{Now: fixedNow})

	intents, err := s.OnEvent(tradeEvent("BTC/USDT", 89, 1))
	if err != nil || len(intents) != 1 || intents[0].Side != contracts.SideBuy {
		t.Fatalf("intents=%+v err=%v, want single BUY at lower bound", intents, err)
	}

	// Still under the bound: debounced, no repeat signal.
	if intents, _ := s.OnEvent(tradeEvent("BTC/USDT", 88, 1)); len(intents) != 0 {
		t.Fatalf("intents=%v, want debounce to suppress repeat BUY", intents)
	}
}

func TestMACrossStrategyGoldenCross(t *testing.T) {
	s, _ := NewMACrossStrategy(Config{ID: "x1", Symbol: "BTC/USDT", Parameters: map[string]any{"fast": 2, "slow": 3, "size": 1.0}}, Context{Now: fixedNow})

	prices := []float64{100, 100, 100, 105, 110}
	var lastIntents []contracts.OrderIntent
	for _, p := range prices {
		intents, err := s.OnEvent(tradeEvent("BTC/USDT", p, 1))
		if err != nil {
			t.Fatalf("OnEvent: %v", err)
		}
		if len(intents) > 0 {
			lastIntents = intents
		}
	}
	if len(lastIntents) != 1 || lastIntents[0].Side != contracts.SideBuy {
		t.Fatalf("lastIntents=%+v, want a golden-cross BUY somewhere in the sequence", lastIntents)
	}
}

func TestRSIStrategyOversoldBuy(t *testing.T) {
	s, _ := NewRSIStrategy(Config{ID: "r1", Symbol: "BTC/USDT", Parameters: map[string]any{"period": 3, "oversold": 30.0, "overbought": 70.0, "size": 1.0}}, Context{Now: fixedNow})

	prices := []float64{100, 99, 98, 97}
	var lastIntents []contracts.OrderIntent
	for _, p := range prices {
		intents, _ := s.OnEvent(tradeEvent("BTC/USDT", p, 1))
		if len(intents) > 0 {
			lastIntents = intents
		}
	}
	if len(lastIntents) != 1 || lastIntents[0].Side != contracts.SideBuy {
		t.Fatalf("lastIntents=%+v, want a BUY once a losses-only series pins RSI below the oversold threshold", lastIntents)
	}
}

func TestOrderBookImbalanceStrategyBuysOnBidHeavyBook(t *testing.T) {
	s, _ := NewOrderBookImbalanceStrategy(Config{ID: "o1", Symbol: "BTC/USDT", Parameters: map[string]any{"imbalance_threshold": 1.5, "size": 1.0}}, Context{Now: fixedNow})

	ev := contracts.BookEventOf(contracts.BookEvent{Symbol: "BTC/USDT", BidQty: 10, AskQty: 2})
	intents, err := s.OnEvent(ev)
	if err != nil || len(intents) != 1 || intents[0].Side != contracts.SideBuy {
		t.Fatalf("intents=%+v err=%v, want single BUY on bid-heavy book", intents, err)
	}
}

func TestVolumeProfileStrategyIgnoresQuietPrints(t *testing.T) {
	s, _ := NewVolumeProfileStrategy(Config{ID: "v1", Symbol: "BTC/USDT", Parameters: map[string]any{"period": 2, "volume_multiplier": 2.0, "size": 1.0}}, Context{Now: fixedNow})

	s.OnEvent(tradeEvent("BTC/USDT", 100, 1))
	intents, err := s.OnEvent(tradeEvent("BTC/USDT", 101, 1))
	if err != nil || len(intents) != 0 {
		t.Fatalf("intents=%v err=%v, want none for average-size prints", intents, err)
	}
}

func TestVolumeProfileStrategyFiresOnVolumeSurge(t *testing.T) {
	s, _ := NewVolumeProfileStrategy(Config{ID: "v2", Symbol: "BTC/USDT", Parameters: map[string]any{"period": 3, "volume_multiplier": 1.5, "size": 1.0}}, Context{Now: fixedNow})

	s.OnEvent(tradeEvent("BTC/USDT", 100, 1))
	s.OnEvent(tradeEvent("BTC/USDT", 100, 1))
	intents, err := s.OnEvent(tradeEvent("BTC/USDT", 105, 10))
	if err != nil || len(intents) != 1 || intents[0].Side != contracts.SideBuy {
		t.Fatalf("intents=%+v err=%v, want a BUY on a high-volume up move", intents, err)
	}
}
