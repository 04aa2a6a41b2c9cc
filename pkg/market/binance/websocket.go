package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL       string
	dialer          *websocket.Dialer
	ReconnectConfig *ReconnectConfig
}

// ReconnectConfig defines the reconnection behavior.
type ReconnectConfig struct {
	Enabled      bool          // whether auto-reconnect is enabled
	MaxRetries   int           // maximum number of reconnection attempts (0 = unlimited)
	InitialDelay time.Duration // initial delay before first reconnect attempt
	MaxDelay     time.Duration // maximum delay between reconnect attempts
	Multiplier   float64       // delay multiplier for exponential backoff
}

// DefaultReconnectConfig returns sensible defaults for reconnection.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		Enabled:      true,
		MaxRetries:   10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL:       (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:          websocket.DefaultDialer,
		ReconnectConfig: DefaultReconnectConfig(),
	}
}

func (c *StreamClient) backoff(attempt int) time.Duration {
	if c.ReconnectConfig == nil {
		return time.Second
	}
	delay := float64(c.ReconnectConfig.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.ReconnectConfig.Multiplier
	}
	if time.Duration(delay) > c.ReconnectConfig.MaxDelay {
		return c.ReconnectConfig.MaxDelay
	}
	return time.Duration(delay)
}

// subscription is shared plumbing for every public stream this client opens:
// dial, decode each frame with decode, resubscribe with backoff on drop.
type subscription[T any] struct {
	client *StreamClient
	label  string // stream name, for log lines
	url    string
	decode func([]byte) (T, error)
}

func (s subscription[T]) run(ctx context.Context) (<-chan T, func(), error) {
	conn, _, err := s.client.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws %s: %w", s.label, err)
	}

	out := make(chan T, 100)
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	var mu sync.Mutex
	active := conn

	stop := func() {
		stopOnce.Do(func() {
			close(stopCh)
			mu.Lock()
			if active != nil {
				_ = active.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = active.Close()
			}
			mu.Unlock()
			close(out)
		})
	}

	reconnect := func(attempt int) (*websocket.Conn, error) {
		if s.client.ReconnectConfig == nil || !s.client.ReconnectConfig.Enabled {
			return nil, fmt.Errorf("reconnect disabled")
		}
		if max := s.client.ReconnectConfig.MaxRetries; max > 0 && attempt >= max {
			return nil, fmt.Errorf("max reconnect attempts (%d) reached", max)
		}
		delay := s.client.backoff(attempt)
		log.Printf("binance ws [%s]: reconnecting in %v (attempt %d)", s.label, delay, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stopCh:
			return nil, fmt.Errorf("stopped")
		}
		newConn, _, err := s.client.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			return nil, err
		}
		return newConn, nil
	}

	go func() {
		defer stop()
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}

			mu.Lock()
			cur := active
			mu.Unlock()
			if cur == nil {
				return
			}

			_, msg, err := cur.ReadMessage()
			if err != nil {
				select {
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws [%s]: read error: %v", s.label, err)

				newConn, reconErr := reconnect(attempt)
				if reconErr != nil {
					log.Printf("binance ws [%s]: reconnect failed: %v", s.label, reconErr)
					return
				}
				attempt++
				mu.Lock()
				active = newConn
				mu.Unlock()
				continue
			}
			attempt = 0

			parsed, err := s.decode(msg)
			if err != nil {
				log.Printf("binance ws [%s]: parse error: %v", s.label, err)
				continue
			}

			select {
			case out <- parsed:
			default:
				// consumer behind, drop rather than block the read loop
			}
		}
	}()

	return out, stop, nil
}

// SubscribeTrades streams individual executed trades for symbol.
func (c *StreamClient) SubscribeTrades(ctx context.Context, symbol string) (<-chan Trade, func(), error) {
	sub := subscription[Trade]{
		client: c,
		label:  "trade",
		url:    fmt.Sprintf("%s/%s@trade", c.StreamURL, strings.ToLower(symbol)),
		decode: parseTradeMessage,
	}
	return sub.run(ctx)
}

// SubscribeDepth streams top-of-book diff depth updates for symbol.
func (c *StreamClient) SubscribeDepth(ctx context.Context, symbol string) (<-chan DepthUpdate, func(), error) {
	sub := subscription[DepthUpdate]{
		client: c,
		label:  "depth",
		url:    fmt.Sprintf("%s/%s@depth", c.StreamURL, strings.ToLower(symbol)),
		decode: parseDepthMessage,
	}
	return sub.run(ctx)
}

// SubscribeTicker streams 24h rolling ticker updates for symbol.
func (c *StreamClient) SubscribeTicker(ctx context.Context, symbol string) (<-chan Ticker, func(), error) {
	sub := subscription[Ticker]{
		client: c,
		label:  "ticker",
		url:    fmt.Sprintf("%s/%s@ticker", c.StreamURL, strings.ToLower(symbol)),
		decode: parseTickerMessage,
	}
	return sub.run(ctx)
}

func parseTradeMessage(msg []byte) (Trade, error) {
	var raw struct {
		Symbol    string      `json:"s"`
		Price     interface{} `json:"p"`
		Qty       interface{} `json:"q"`
		TradeTime interface{} `json:"T"`
		BuyerIsMM bool        `json:"m"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Trade{}, err
	}
	return Trade{
		Symbol:       raw.Symbol,
		Price:        toFloat(raw.Price),
		Qty:          toFloat(raw.Qty),
		Time:         toInt64(raw.TradeTime),
		IsBuyerMaker: raw.BuyerIsMM,
	}, nil
}

func parseDepthMessage(msg []byte) (DepthUpdate, error) {
	var raw struct {
		Symbol string          `json:"s"`
		Time   interface{}     `json:"E"`
		Bids   [][]interface{} `json:"b"`
		Asks   [][]interface{} `json:"a"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return DepthUpdate{}, err
	}
	var bids [][2]float64
	for _, b := range raw.Bids {
		if len(b) < 2 {
			continue
		}
		bids = append(bids, [2]float64{toFloat(b[0]), toFloat(b[1])})
	}
	var asks [][2]float64
	for _, a := range raw.Asks {
		if len(a) < 2 {
			continue
		}
		asks = append(asks, [2]float64{toFloat(a[0]), toFloat(a[1])})
	}
	return DepthUpdate{
		Symbol: raw.Symbol,
		Bids:   bids,
		Asks:   asks,
		Time:   toInt64(raw.Time),
	}, nil
}

func parseTickerMessage(msg []byte) (Ticker, error) {
	var raw struct {
		Symbol string      `json:"s"`
		Last   interface{} `json:"c"`
		CloseT int64       `json:"C"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Ticker{}, err
	}
	return Ticker{
		Symbol: raw.Symbol,
		Price:  toFloat(raw.Last),
		Time:   raw.CloseT,
	}, nil
}
