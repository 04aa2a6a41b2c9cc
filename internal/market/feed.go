// Package market adapts a price source (a real venue stream or a synthetic
// generator) into contracts.TradeEvent publications on md.trades.{symbol}.
package market

import (
	"context"
	"log"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	marketws "github.com/blackforestdev/njord-quant/pkg/market/binance"
)

// ReconnectConfig controls the backoff applied between Feed's resubscribe
// attempts when the underlying stream ends.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectConfig mirrors the delays of pkg/market/binance's DefaultReconnectConfig.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0}
}

func (c ReconnectConfig) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// Feed streams trades from Binance and republishes them as contracts.TradeEvent.
type Feed struct {
	Stream    *marketws.StreamClient
	Bus       bus.Bus
	Symbols   []string
	Venue     string
	Reconnect ReconnectConfig
}

// NewFeed builds a Feed with the default reconnect backoff.
func NewFeed(stream *marketws.StreamClient, b bus.Bus, venue string, symbols []string) *Feed {
	return &Feed{Stream: stream, Bus: b, Symbols: symbols, Venue: venue, Reconnect: DefaultReconnectConfig()}
}

// Start launches one trade-stream, one depth-stream and one ticker-stream
// goroutine per configured symbol; each resubscribes with exponential backoff if the
// underlying stream ends.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.Stream == nil {
		log.Println("market feed: bus or stream not set; skipping")
		return
	}
	for _, sym := range f.Symbols {
		go f.run(ctx, sym)
		go f.runDepth(ctx, sym)
		go f.runTicker(ctx, sym)
	}
}

func (f *Feed) run(ctx context.Context, symbol string) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		trades, stop, err := f.Stream.SubscribeTrades(ctx, symbol)
		if err != nil {
			log.Printf("market feed: subscribe %s: %v", symbol, err)
			attempt++
			select {
			case <-time.After(f.Reconnect.backoff(attempt)):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0
		f.drain(ctx, symbol, trades)
		stop()
		if ctx.Err() != nil {
			return
		}
		log.Printf("market feed: %s stream ended, resubscribing", symbol)
	}
}

// runDepth feeds the order-book-imbalance style strategies by republishing
// top-of-book snapshots from the diff-depth stream as contracts.BookEvent.
func (f *Feed) runDepth(ctx context.Context, symbol string) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		depth, stop, err := f.Stream.SubscribeDepth(ctx, symbol)
		if err != nil {
			log.Printf("market feed: subscribe depth %s: %v", symbol, err)
			attempt++
			select {
			case <-time.After(f.Reconnect.backoff(attempt)):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0
		f.drainDepth(ctx, symbol, depth)
		stop()
		if ctx.Err() != nil {
			return
		}
		log.Printf("market feed: %s depth stream ended, resubscribing", symbol)
	}
}

// runTicker republishes the 24h ticker stream as contracts.TickerEvent, for
// strategies or monitoring that only need a coarse last-price heartbeat.
func (f *Feed) runTicker(ctx context.Context, symbol string) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		tickers, stop, err := f.Stream.SubscribeTicker(ctx, symbol)
		if err != nil {
			log.Printf("market feed: subscribe ticker %s: %v", symbol, err)
			attempt++
			select {
			case <-time.After(f.Reconnect.backoff(attempt)):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0
		f.drainTicker(ctx, symbol, tickers)
		stop()
		if ctx.Err() != nil {
			return
		}
		log.Printf("market feed: %s ticker stream ended, resubscribing", symbol)
	}
}

func (f *Feed) drainTicker(ctx context.Context, symbol string, tickers <-chan marketws.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case tk, ok := <-tickers:
			if !ok {
				return
			}
			ev := contracts.TickerEvent{
				Symbol:    symbol,
				LastPrice: tk.Price,
				TsNs:      tk.Time * int64(time.Millisecond),
				Venue:     f.Venue,
			}
			if err := f.Bus.Publish(ctx, contracts.TickerTopic(symbol), ev.Fields()); err != nil {
				log.Printf("market feed: publish ticker %s: %v", symbol, err)
			}
		}
	}
}

func (f *Feed) drain(ctx context.Context, symbol string, trades <-chan marketws.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			ev := contracts.TradeEvent{
				Symbol: symbol,
				Price:  t.Price,
				Qty:    t.Qty,
				TsNs:   t.Time * int64(time.Millisecond),
				Venue:  f.Venue,
			}
			if t.IsBuyerMaker {
				ev.Side = contracts.SideSell
			} else {
				ev.Side = contracts.SideBuy
			}
			if err := f.Bus.Publish(ctx, contracts.TradeTopic(symbol), ev.Fields()); err != nil {
				log.Printf("market feed: publish %s: %v", symbol, err)
			}
		}
	}
}

func (f *Feed) drainDepth(ctx context.Context, symbol string, updates <-chan marketws.DepthUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-updates:
			if !ok {
				return
			}
			if len(d.Bids) == 0 || len(d.Asks) == 0 {
				continue
			}
			ev := contracts.BookEvent{
				Symbol:   symbol,
				BidPrice: d.Bids[0][0],
				BidQty:   d.Bids[0][1],
				AskPrice: d.Asks[0][0],
				AskQty:   d.Asks[0][1],
				TsNs:     d.Time * int64(time.Millisecond),
				Venue:    f.Venue,
			}
			if err := f.Bus.Publish(ctx, contracts.BookTopic(symbol), ev.Fields()); err != nil {
				log.Printf("market feed: publish book %s: %v", symbol, err)
			}
		}
	}
}
