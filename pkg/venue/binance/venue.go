// Package binance implements broker.Venue against Binance spot, adapting
// pkg/exchanges/binance/spot's REST client to the dispatcher's idempotent
// placement/fetch/cancel/balances contract.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blackforestdev/njord-quant/internal/broker"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/pkg/exchanges/binance/spot"
	"github.com/blackforestdev/njord-quant/pkg/exchanges/common"
)

// DefaultRequestsPerSecond throttles outgoing REST calls well under
// Binance's spot weight limit before a single request is ever sent,
// independent of the reactive 429/418 handling in withRetry.
const DefaultRequestsPerSecond = 10

// RetryPolicy bounds the attempts Venue makes against transient failures:
// network errors and HTTP 429/418 (rate-limited / IP-banned), honoring
// Retry-After when the exchange sends one.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 5 attempts, base 200ms, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Venue adapts *spot.Client to broker.Venue.
type Venue struct {
	Client  *spot.Client
	Retry   RetryPolicy
	Limiter *rate.Limiter
	// Testnet selects the user-data-stream host for Stream; set it to match
	// the Testnet flag the underlying spot.Client was built with.
	Testnet bool

	mu      sync.Mutex
	symbols map[string]string // client_order_id -> symbol, for FetchOrder recovery
}

// New wraps an already-configured spot client with the default retry policy
// and a limiter capped at DefaultRequestsPerSecond.
func New(client *spot.Client) *Venue {
	return &Venue{
		Client:  client,
		Retry:   DefaultRetryPolicy(),
		Limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		symbols: make(map[string]string),
	}
}

var _ broker.Venue = (*Venue)(nil)
var _ broker.OrderStreamer = (*Venue)(nil)

// Stream satisfies broker.OrderStreamer, letting Dispatcher.Run pick up
// order-status pushes instead of polling FetchOrder for every open order.
func (v *Venue) Stream(ctx context.Context) (<-chan contracts.BrokerOrderUpdate, error) {
	s := &OrderStream{Client: v, Testnet: v.Testnet}
	return s.Stream(ctx)
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toBinanceSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for _, r := range symbol {
		if r == '/' {
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

func (v *Venue) withRetry(ctx context.Context, do func() error) error {
	var lastErr error
	for attempt := 0; attempt < v.Retry.MaxAttempts; attempt++ {
		if v.Limiter != nil {
			if err := v.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = do()
		if lastErr == nil {
			return nil
		}
		var apiErr *spot.APIError
		retryable := true
		if errors.As(lastErr, &apiErr) {
			retryable = apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.HTTPStatus == 418
		}
		if !retryable {
			return lastErr
		}
		var retryAfter time.Duration
		if apiErr != nil {
			retryAfter = apiErr.RetryAfter
		}
		select {
		case <-time.After(v.Retry.delay(attempt, retryAfter)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("binance venue: exhausted %d attempts: %w", v.Retry.MaxAttempts, lastErr)
}

// Place submits req, mapping Binance's duplicate-client-order-id rejection
// to broker.ErrDuplicateOrder so the dispatcher can recover via FetchOrder.
func (v *Venue) Place(ctx context.Context, req contracts.BrokerOrderReq) (contracts.BrokerOrderAck, error) {
	v.mu.Lock()
	v.symbols[req.ClientOrderID] = req.Symbol
	v.mu.Unlock()

	orderType := common.OrderTypeMarket
	if req.OrderType == contracts.OrderTypeLimit {
		orderType = common.OrderTypeLimit
	}
	side := common.SideBuy
	if req.Side == contracts.SideSell {
		side = common.SideSell
	}
	creq := common.OrderRequest{
		Symbol:      toBinanceSymbol(req.Symbol),
		Side:        side,
		Type:        orderType,
		Qty:         req.Qty,
		Price:       req.LimitPrice,
		TimeInForce: common.TIFGTC,
		ClientID:    req.ClientOrderID,
	}

	var result common.OrderResult
	err := v.withRetry(ctx, func() error {
		var placeErr error
		result, placeErr = v.Client.SubmitOrder(ctx, creq)
		return placeErr
	})
	if err != nil {
		var apiErr *spot.APIError
		if errors.As(err, &apiErr) && apiErr.Code == spot.DuplicateClientOrderIDCode {
			return contracts.BrokerOrderAck{}, fmt.Errorf("%w: %v", broker.ErrDuplicateOrder, err)
		}
		return contracts.BrokerOrderAck{}, err
	}

	return contracts.BrokerOrderAck{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  result.ExchangeOrderID,
		Symbol:        req.Symbol,
		Status:        string(result.Status),
		TsAckNs:       time.Now().UnixNano(),
	}, nil
}

// FetchOrder looks an order up by its client order id, for idempotent
// recovery after a duplicate-placement rejection. Place always records the
// symbol for a client order id before attempting submission, so the lookup
// that the Binance API requires (symbol + origClientOrderId) is available
// even when the Place call itself failed.
func (v *Venue) FetchOrder(ctx context.Context, clientOrderID string) (contracts.BrokerOrderAck, bool, error) {
	v.mu.Lock()
	symbol, ok := v.symbols[clientOrderID]
	v.mu.Unlock()
	if !ok {
		return contracts.BrokerOrderAck{}, false, fmt.Errorf("binance venue: no symbol recorded for client order id %s", clientOrderID)
	}

	var ord *spot.OpenOrder
	err := v.withRetry(ctx, func() error {
		var fetchErr error
		ord, fetchErr = v.Client.GetOrderByClientID(ctx, toBinanceSymbol(symbol), clientOrderID)
		return fetchErr
	})
	if err != nil {
		return contracts.BrokerOrderAck{}, false, err
	}
	if ord == nil {
		return contracts.BrokerOrderAck{}, false, nil
	}
	return contracts.BrokerOrderAck{
		ClientOrderID: clientOrderID,
		VenueOrderID:  fmt.Sprintf("%d", ord.OrderID),
		Symbol:        symbol,
		Status:        ord.Status,
		TsAckNs:       time.Now().UnixNano(),
	}, true, nil
}

// Cancel cancels an order by client order id, using the symbol Place
// recorded for it.
func (v *Venue) Cancel(ctx context.Context, clientOrderID string) error {
	v.mu.Lock()
	symbol, ok := v.symbols[clientOrderID]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("binance venue: no symbol recorded for client order id %s", clientOrderID)
	}
	return v.withRetry(ctx, func() error {
		return v.Client.CancelByClientID(ctx, toBinanceSymbol(symbol), clientOrderID)
	})
}

// Balances reports free/locked balances for every non-zero asset.
func (v *Venue) Balances(ctx context.Context) ([]contracts.BalanceSnapshot, error) {
	var info *spot.AccountInfo
	err := v.withRetry(ctx, func() error {
		var fetchErr error
		info, fetchErr = v.Client.GetAccountInfo(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixNano()
	out := make([]contracts.BalanceSnapshot, 0, len(info.Balances))
	for _, b := range info.Balances {
		free := parseFloatOrZero(b.Free)
		locked := parseFloatOrZero(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		out = append(out, contracts.BalanceSnapshot{Asset: b.Asset, Free: free, Locked: locked, TsNs: now})
	}
	return out, nil
}
