package market

import (
	"context"
	"testing"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

func TestMockFeedPublishesTradesAndBooks(t *testing.T) {
	b := bus.NewMemoryBus()
	feed := &MockFeed{Bus: b, Symbols: []string{"BTC/USDT"}, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	feed.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)

	trades := b.Published(contracts.TradeTopic("BTC/USDT"))
	if len(trades) == 0 {
		t.Fatalf("expected at least one published trade")
	}
	books := b.Published(contracts.BookTopic("BTC/USDT"))
	if len(books) == 0 {
		t.Fatalf("expected at least one published book snapshot")
	}
	if books[0]["bid_price"].(float64) >= books[0]["ask_price"].(float64) {
		t.Fatalf("book=%v, want bid < ask", books[0])
	}
}
