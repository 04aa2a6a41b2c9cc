package contracts

// OrderEvent is an approved intent forwarded downstream to the paper OMS
// and/or the broker dispatcher.
type OrderEvent struct {
	IntentID      string
	Venue         string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Qty           float64
	LimitPrice    float64
	HasLimit      bool
	ClientOrderID string
	TsAcceptedNs  int64
	// Meta carries the originating intent's meta verbatim so it can
	// round-trip onto the resulting FillEvent. Not listed
	// among OrderEvent's own fields but tolerated as a forward-compatible
	// extra key by every deserializer.
	Meta map[string]any
}

func (o OrderEvent) Fields() map[string]any {
	f := map[string]any{
		"intent_id":       o.IntentID,
		"venue":           o.Venue,
		"symbol":          o.Symbol,
		"side":            string(o.Side),
		"order_type":      string(o.OrderType),
		"qty":             o.Qty,
		"client_order_id": o.ClientOrderID,
		"ts_accepted_ns":  o.TsAcceptedNs,
		"meta":            cloneMeta(o.Meta),
	}
	if o.HasLimit {
		f["limit_price"] = o.LimitPrice
	}
	return f
}

func OrderEventFromFields(f map[string]any) (OrderEvent, error) {
	intentID, err := getString(f, "intent_id")
	if err != nil {
		return OrderEvent{}, err
	}
	venue, err := getString(f, "venue")
	if err != nil {
		return OrderEvent{}, err
	}
	symbol, err := getString(f, "symbol")
	if err != nil {
		return OrderEvent{}, err
	}
	side, err := getString(f, "side")
	if err != nil {
		return OrderEvent{}, err
	}
	orderType, err := getString(f, "order_type")
	if err != nil {
		return OrderEvent{}, err
	}
	qty, err := getFloat(f, "qty")
	if err != nil {
		return OrderEvent{}, err
	}
	clientOrderID, err := getString(f, "client_order_id")
	if err != nil {
		return OrderEvent{}, err
	}
	tsAcceptedNs, err := getInt64(f, "ts_accepted_ns")
	if err != nil {
		return OrderEvent{}, err
	}
	limitPrice, hasLimit, err := getOptionalFloat(f, "limit_price")
	if err != nil {
		return OrderEvent{}, err
	}
	return OrderEvent{
		IntentID:      intentID,
		Venue:         venue,
		Symbol:        symbol,
		Side:          Side(side),
		OrderType:     OrderType(orderType),
		Qty:           qty,
		LimitPrice:    limitPrice,
		HasLimit:      hasLimit,
		ClientOrderID: clientOrderID,
		TsAcceptedNs:  tsAcceptedNs,
		Meta:          getMeta(f, "meta"),
	}, nil
}

// FillEvent is a simulated or venue-confirmed execution of an OrderEvent.
type FillEvent struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     float64
	Price   float64
	Fee     float64
	TsFillNs int64
	Meta    map[string]any
}

func (f2 FillEvent) Fields() map[string]any {
	return map[string]any{
		"order_id":   f2.OrderID,
		"symbol":     f2.Symbol,
		"side":       string(f2.Side),
		"qty":        f2.Qty,
		"price":      f2.Price,
		"fee":        f2.Fee,
		"ts_fill_ns": f2.TsFillNs,
		"meta":       cloneMeta(f2.Meta),
	}
}

func FillEventFromFields(f map[string]any) (FillEvent, error) {
	orderID, err := getString(f, "order_id")
	if err != nil {
		return FillEvent{}, err
	}
	symbol, err := getString(f, "symbol")
	if err != nil {
		return FillEvent{}, err
	}
	side, err := getString(f, "side")
	if err != nil {
		return FillEvent{}, err
	}
	qty, err := getFloat(f, "qty")
	if err != nil {
		return FillEvent{}, err
	}
	price, err := getFloat(f, "price")
	if err != nil {
		return FillEvent{}, err
	}
	fee, err := getFloat(f, "fee")
	if err != nil {
		return FillEvent{}, err
	}
	tsFillNs, err := getInt64(f, "ts_fill_ns")
	if err != nil {
		return FillEvent{}, err
	}
	return FillEvent{
		OrderID:  orderID,
		Symbol:   symbol,
		Side:     Side(side),
		Qty:      qty,
		Price:    price,
		Fee:      fee,
		TsFillNs: tsFillNs,
		Meta:     getMeta(f, "meta"),
	}, nil
}

// PositionSnapshot is the FIFO-derived state of a symbol's open position.
type PositionSnapshot struct {
	Symbol      string
	Qty         float64
	AvgPrice    float64
	RealizedPnL float64
	TsNs        int64
}

func (p PositionSnapshot) Fields() map[string]any {
	return map[string]any{
		"symbol":       p.Symbol,
		"qty":          p.Qty,
		"avg_price":    p.AvgPrice,
		"realized_pnl": p.RealizedPnL,
		"ts_ns":        p.TsNs,
	}
}

func PositionSnapshotFromFields(f map[string]any) (PositionSnapshot, error) {
	symbol, err := getString(f, "symbol")
	if err != nil {
		return PositionSnapshot{}, err
	}
	qty, err := getFloat(f, "qty")
	if err != nil {
		return PositionSnapshot{}, err
	}
	avgPrice, err := getFloat(f, "avg_price")
	if err != nil {
		return PositionSnapshot{}, err
	}
	realizedPnL, err := getFloat(f, "realized_pnl")
	if err != nil {
		return PositionSnapshot{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return PositionSnapshot{}, err
	}
	return PositionSnapshot{
		Symbol:      symbol,
		Qty:         qty,
		AvgPrice:    avgPrice,
		RealizedPnL: realizedPnL,
		TsNs:        tsNs,
	}, nil
}
