package contracts

// TradeEvent is a single executed trade observed on a venue.
type TradeEvent struct {
	Symbol  string
	Price   float64
	Qty     float64
	Side    Side
	TsNs    int64
	Venue   string
	TradeID string
}

func (t TradeEvent) Fields() map[string]any {
	return map[string]any{
		"symbol":   t.Symbol,
		"price":    t.Price,
		"qty":      t.Qty,
		"side":     string(t.Side),
		"ts_ns":    t.TsNs,
		"venue":    t.Venue,
		"trade_id": t.TradeID,
	}
}

func TradeEventFromFields(f map[string]any) (TradeEvent, error) {
	symbol, err := getString(f, "symbol")
	if err != nil {
		return TradeEvent{}, err
	}
	price, err := getFloat(f, "price")
	if err != nil {
		return TradeEvent{}, err
	}
	qty, err := getFloat(f, "qty")
	if err != nil {
		return TradeEvent{}, err
	}
	side, err := getString(f, "side")
	if err != nil {
		return TradeEvent{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return TradeEvent{}, err
	}
	venue, err := getString(f, "venue")
	if err != nil {
		return TradeEvent{}, err
	}
	tradeID, err := getString(f, "trade_id")
	if err != nil {
		return TradeEvent{}, err
	}
	return TradeEvent{
		Symbol:  symbol,
		Price:   price,
		Qty:     qty,
		Side:    Side(side),
		TsNs:    tsNs,
		Venue:   venue,
		TradeID: tradeID,
	}, nil
}

// BookEvent is a top-of-book summary.
type BookEvent struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
	TsNs     int64
	Venue    string
}

func (b BookEvent) Fields() map[string]any {
	return map[string]any{
		"symbol":    b.Symbol,
		"bid_price": b.BidPrice,
		"bid_qty":   b.BidQty,
		"ask_price": b.AskPrice,
		"ask_qty":   b.AskQty,
		"ts_ns":     b.TsNs,
		"venue":     b.Venue,
	}
}

func BookEventFromFields(f map[string]any) (BookEvent, error) {
	symbol, err := getString(f, "symbol")
	if err != nil {
		return BookEvent{}, err
	}
	bidPrice, err := getFloat(f, "bid_price")
	if err != nil {
		return BookEvent{}, err
	}
	bidQty, err := getFloat(f, "bid_qty")
	if err != nil {
		return BookEvent{}, err
	}
	askPrice, err := getFloat(f, "ask_price")
	if err != nil {
		return BookEvent{}, err
	}
	askQty, err := getFloat(f, "ask_qty")
	if err != nil {
		return BookEvent{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return BookEvent{}, err
	}
	venue, err := getString(f, "venue")
	if err != nil {
		return BookEvent{}, err
	}
	return BookEvent{
		Symbol:   symbol,
		BidPrice: bidPrice,
		BidQty:   bidQty,
		AskPrice: askPrice,
		AskQty:   askQty,
		TsNs:     tsNs,
		Venue:    venue,
	}, nil
}

// TickerEvent is a last-price summary.
type TickerEvent struct {
	Symbol    string
	LastPrice float64
	TsNs      int64
	Venue     string
}

func (t TickerEvent) Fields() map[string]any {
	return map[string]any{
		"symbol":     t.Symbol,
		"last_price": t.LastPrice,
		"ts_ns":      t.TsNs,
		"venue":      t.Venue,
	}
}

func TickerEventFromFields(f map[string]any) (TickerEvent, error) {
	symbol, err := getString(f, "symbol")
	if err != nil {
		return TickerEvent{}, err
	}
	lastPrice, err := getFloat(f, "last_price")
	if err != nil {
		return TickerEvent{}, err
	}
	tsNs, err := getInt64(f, "ts_ns")
	if err != nil {
		return TickerEvent{}, err
	}
	venue, err := getString(f, "venue")
	if err != nil {
		return TickerEvent{}, err
	}
	return TickerEvent{Symbol: symbol, LastPrice: lastPrice, TsNs: tsNs, Venue: venue}, nil
}
