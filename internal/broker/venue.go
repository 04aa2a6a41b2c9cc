// Package broker implements the live broker dispatcher: dry-run echoing vs
// gated live placement, the hard micro-cap, idempotent recovery, and
// cancel/update/balance fan-out.
package broker

import (
	"context"
	"fmt"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// ErrDuplicateClientOrderID is raised when the venue reports a duplicate
// client-order-id and fetch_order cannot locate the existing order
// "Duplicate placement").
var ErrDuplicateClientOrderID = fmt.Errorf("broker: duplicate client order id, no existing order found")

// Venue is the live broker boundary: mirrors exchange.Gateway
// but adds the idempotent-lookup and cancel operations the dispatcher requires.
type Venue interface {
	Place(ctx context.Context, req contracts.BrokerOrderReq) (contracts.BrokerOrderAck, error)
	FetchOrder(ctx context.Context, clientOrderID string) (contracts.BrokerOrderAck, bool, error)
	Cancel(ctx context.Context, clientOrderID string) error
	Balances(ctx context.Context) ([]contracts.BalanceSnapshot, error)
}

// ErrDuplicateOrder is the sentinel a Venue.Place implementation returns
// (wrapped) when the venue itself reports a duplicate client-order-id.
var ErrDuplicateOrder = fmt.Errorf("broker: venue reports duplicate client order id")
