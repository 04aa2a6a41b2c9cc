package contracts

// BrokerOrderReq is what the dispatcher sends to a Venue.
type BrokerOrderReq struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Qty           float64
	LimitPrice    float64
	HasLimit      bool
}

func (r BrokerOrderReq) Fields() map[string]any {
	f := map[string]any{
		"client_order_id": r.ClientOrderID,
		"symbol":          r.Symbol,
		"side":            string(r.Side),
		"order_type":      string(r.OrderType),
		"qty":             r.Qty,
	}
	if r.HasLimit {
		f["limit_price"] = r.LimitPrice
	}
	return f
}

// BrokerOrderAck is the venue's response to a placement, successful or
// recovered via idempotent lookup.
type BrokerOrderAck struct {
	ClientOrderID  string
	VenueOrderID   string
	Symbol         string
	Status         string
	TsAckNs        int64
}

func (a BrokerOrderAck) Fields() map[string]any {
	return map[string]any{
		"client_order_id": a.ClientOrderID,
		"venue_order_id":  a.VenueOrderID,
		"symbol":          a.Symbol,
		"status":          a.Status,
		"ts_ack_ns":       a.TsAckNs,
	}
}

func BrokerOrderAckFromFields(f map[string]any) (BrokerOrderAck, error) {
	clientOrderID, err := getString(f, "client_order_id")
	if err != nil {
		return BrokerOrderAck{}, err
	}
	venueOrderID, err := getString(f, "venue_order_id")
	if err != nil {
		return BrokerOrderAck{}, err
	}
	symbol, err := getString(f, "symbol")
	if err != nil {
		return BrokerOrderAck{}, err
	}
	status, err := getString(f, "status")
	if err != nil {
		return BrokerOrderAck{}, err
	}
	tsAckNs, err := getInt64(f, "ts_ack_ns")
	if err != nil {
		return BrokerOrderAck{}, err
	}
	return BrokerOrderAck{
		ClientOrderID: clientOrderID,
		VenueOrderID:  venueOrderID,
		Symbol:        symbol,
		Status:        status,
		TsAckNs:       tsAckNs,
	}, nil
}

// BrokerOrderUpdate reports a state change on a venue order, polled or
// streamed from the venue.
type BrokerOrderUpdate struct {
	ClientOrderID string
	VenueOrderID  string
	Symbol        string
	Status        string
	FilledQty     float64
	TsNs          int64
}

func (u BrokerOrderUpdate) Fields() map[string]any {
	return map[string]any{
		"client_order_id": u.ClientOrderID,
		"venue_order_id":  u.VenueOrderID,
		"symbol":          u.Symbol,
		"status":          u.Status,
		"filled_qty":      u.FilledQty,
		"ts_ns":           u.TsNs,
	}
}

// BalanceSnapshot reports a venue account balance for one asset.
type BalanceSnapshot struct {
	Asset  string
	Free   float64
	Locked float64
	TsNs   int64
}

func (b BalanceSnapshot) Fields() map[string]any {
	return map[string]any{
		"asset":  b.Asset,
		"free":   b.Free,
		"locked": b.Locked,
		"ts_ns":  b.TsNs,
	}
}

// CancelRequest is published on orders.cancel.
type CancelRequest struct {
	ClientOrderID string
	Symbol        string
	TsNs          int64
}

func (c CancelRequest) Fields() map[string]any {
	return map[string]any{
		"client_order_id": c.ClientOrderID,
		"symbol":          c.Symbol,
		"ts_ns":           c.TsNs,
	}
}

func CancelRequestFromFields(f map[string]any) (CancelRequest, error) {
	clientOrderID, err := getString(f, "client_order_id")
	if err != nil {
		return CancelRequest{}, err
	}
	symbol, err := getString(f, "symbol")
	if err != nil {
		return CancelRequest{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return CancelRequest{}, err
	}
	return CancelRequest{ClientOrderID: clientOrderID, Symbol: symbol, TsNs: tsNs}, nil
}
