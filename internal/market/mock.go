package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// MockFeed generates a synthetic random walk of trades for local development
// and demos, without touching a real venue.
type MockFeed struct {
	Bus        bus.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTC/USDT"}
	}
	price := m.StartPrice
	if price == 0 {
		price = 100.0
	}
	step := m.Step
	if step == 0 {
		step = 0.5
	}
	interval := m.Interval
	if interval == 0 {
		interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = price
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					prices[sym] += (rand.Float64()*2 - 1) * step
					now := time.Now().UnixNano()
					ev := contracts.TradeEvent{
						Symbol: sym,
						Price:  prices[sym],
						Qty:    1 + rand.Float64()*4,
						Side:   contracts.SideBuy,
						TsNs:   now,
						Venue:  "mock",
					}
					if err := m.Bus.Publish(ctx, contracts.TradeTopic(sym), ev.Fields()); err != nil {
						log.Printf("mock feed: publish %s: %v", sym, err)
					}

					spread := prices[sym] * 0.0005
					book := contracts.BookEvent{
						Symbol:   sym,
						BidPrice: prices[sym] - spread,
						BidQty:   1 + rand.Float64()*9,
						AskPrice: prices[sym] + spread,
						AskQty:   1 + rand.Float64()*9,
						TsNs:     now,
						Venue:    "mock",
					}
					if err := m.Bus.Publish(ctx, contracts.BookTopic(sym), book.Fields()); err != nil {
						log.Printf("mock feed: publish book %s: %v", sym, err)
					}
				}
			}
		}
	}()
}
