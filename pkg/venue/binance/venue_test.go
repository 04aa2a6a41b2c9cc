package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blackforestdev/njord-quant/internal/broker"
	"github.com/blackforestdev/njord-quant/internal/contracts"
	"github.com/blackforestdev/njord-quant/pkg/exchanges/binance/spot"
)

func newTestVenue(t *testing.T, handler http.HandlerFunc) *Venue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := spot.NewWithBaseURL(spot.Config{APIKey: "k", APISecret: "s"}, srv.URL)
	v := New(client)
	v.Retry = RetryPolicy{MaxAttempts: 2, BaseDelay: 0, MaxDelay: 0}
	return v
}

func TestPlaceMapsDuplicateClientOrderIDToErrDuplicateOrder(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": spot.DuplicateClientOrderIDCode, "msg": "Duplicate order sent."})
	})

	_, err := v.Place(context.Background(), contracts.BrokerOrderReq{
		ClientOrderID: "njq-1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1,
	})
	if !errors.Is(err, broker.ErrDuplicateOrder) {
		t.Fatalf("err=%v, want wrapped ErrDuplicateOrder", err)
	}
}

func TestPlaceSucceedsAndFillsAck(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol": "BTCUSDT", "orderId": 99, "clientOrderId": "njq-1", "status": "FILLED",
		})
	})

	ack, err := v.Place(context.Background(), contracts.BrokerOrderReq{
		ClientOrderID: "njq-1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if ack.VenueOrderID != "99" || ack.Status != "FILLED" {
		t.Fatalf("ack=%+v, want venue_order_id=99 status=FILLED", ack)
	}
}

func TestFetchOrderUsesSymbolRecordedByPlace(t *testing.T) {
	var sawSymbol string
	v := newTestVenue(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": spot.DuplicateClientOrderIDCode, "msg": "dup"})
			return
		}
		sawSymbol = r.URL.Query().Get("symbol")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol": "BTCUSDT", "orderId": 7, "clientOrderId": "njq-1", "status": "NEW",
		})
	})

	_, err := v.Place(context.Background(), contracts.BrokerOrderReq{
		ClientOrderID: "njq-1", Symbol: "BTC/USDT", Side: contracts.SideBuy,
		OrderType: contracts.OrderTypeMarket, Qty: 1,
	})
	if !errors.Is(err, broker.ErrDuplicateOrder) {
		t.Fatalf("Place err=%v, want ErrDuplicateOrder", err)
	}

	ack, found, ferr := v.FetchOrder(context.Background(), "njq-1")
	if ferr != nil {
		t.Fatalf("FetchOrder: %v", ferr)
	}
	if !found || ack.VenueOrderID != "7" {
		t.Fatalf("ack=%+v found=%v, want recovered order 7", ack, found)
	}
	if sawSymbol != "BTCUSDT" {
		t.Fatalf("sawSymbol=%q, want BTCUSDT (from Place's recorded symbol)", sawSymbol)
	}
}

func TestFetchOrderWithoutPriorPlaceFails(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, r *http.Request) {})
	_, _, err := v.FetchOrder(context.Background(), "unknown")
	if err == nil {
		t.Fatalf("FetchOrder: want error for client order id never seen by Place")
	}
}
