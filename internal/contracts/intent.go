package contracts

// OrderIntent is a strategy's expressed desire to place an order, subject to
// risk approval. Produced only by strategies.
type OrderIntent struct {
	IntentID   string
	StrategyID string
	Symbol     string
	Side       Side
	OrderType  OrderType
	Qty        float64
	LimitPrice float64 // only meaningful when OrderType == OrderTypeLimit
	HasLimit   bool
	TsNs       int64
	Meta       map[string]any
}

func (o OrderIntent) Fields() map[string]any {
	f := map[string]any{
		"intent_id":   o.IntentID,
		"strategy_id": o.StrategyID,
		"symbol":      o.Symbol,
		"side":        string(o.Side),
		"order_type":  string(o.OrderType),
		"qty":         o.Qty,
		"ts_ns":       o.TsNs,
		"meta":        cloneMeta(o.Meta),
	}
	if o.HasLimit {
		f["limit_price"] = o.LimitPrice
	}
	return f
}

func OrderIntentFromFields(f map[string]any) (OrderIntent, error) {
	intentID, err := getString(f, "intent_id")
	if err != nil {
		return OrderIntent{}, err
	}
	strategyID, err := getString(f, "strategy_id")
	if err != nil {
		return OrderIntent{}, err
	}
	symbol, err := getString(f, "symbol")
	if err != nil {
		return OrderIntent{}, err
	}
	side, err := getString(f, "side")
	if err != nil {
		return OrderIntent{}, err
	}
	orderType, err := getString(f, "order_type")
	if err != nil {
		return OrderIntent{}, err
	}
	qty, err := getFloat(f, "qty")
	if err != nil {
		return OrderIntent{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return OrderIntent{}, err
	}
	limitPrice, hasLimit, err := getOptionalFloat(f, "limit_price")
	if err != nil {
		return OrderIntent{}, err
	}
	return OrderIntent{
		IntentID:   intentID,
		StrategyID: strategyID,
		Symbol:     symbol,
		Side:       Side(side),
		OrderType:  OrderType(orderType),
		Qty:        qty,
		LimitPrice: limitPrice,
		HasLimit:   hasLimit,
		TsNs:       tsNs,
		Meta:       getMeta(f, "meta"),
	}, nil
}

// Valid reports whether the intent is well-formed:
// a missing required field, negative qty, or zero qty makes it invalid.
func (o OrderIntent) Valid() bool {
	if o.IntentID == "" || o.StrategyID == "" || o.Symbol == "" {
		return false
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return false
	}
	if o.OrderType != OrderTypeMarket && o.OrderType != OrderTypeLimit {
		return false
	}
	if o.Qty <= 0 {
		return false
	}
	if o.OrderType == OrderTypeLimit && !o.HasLimit {
		return false
	}
	return true
}

// RiskDecision is the risk engine's per-intent verdict.
type RiskDecision struct {
	IntentID string
	Allowed  bool
	Reason   DenyReason
	TsNs     int64
	Caps     map[string]any
}

func (d RiskDecision) Fields() map[string]any {
	f := map[string]any{
		"intent_id": d.IntentID,
		"allowed":   d.Allowed,
		"ts_ns":     d.TsNs,
		"caps":      cloneMeta(d.Caps),
	}
	if d.Reason != ReasonNone {
		f["reason"] = string(d.Reason)
	}
	return f
}

func RiskDecisionFromFields(f map[string]any) (RiskDecision, error) {
	intentID, err := getString(f, "intent_id")
	if err != nil {
		return RiskDecision{}, err
	}
	allowed, err := getBool(f, "allowed")
	if err != nil {
		return RiskDecision{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return RiskDecision{}, err
	}
	reason := ReasonNone
	if r, ok := f["reason"]; ok && r != nil {
		rs, ok := r.(string)
		if !ok {
			return RiskDecision{}, errFieldType("reason", r)
		}
		reason = DenyReason(rs)
	}
	return RiskDecision{
		IntentID: intentID,
		Allowed:  allowed,
		Reason:   reason,
		TsNs:     tsNs,
		Caps:     getMeta(f, "caps"),
	}, nil
}
