package market

// Ticker holds the latest traded price from the 24h ticker stream.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}

// Trade represents a single executed trade.
type Trade struct {
	Symbol       string
	Price        float64
	Qty          float64
	Time         int64
	IsBuyerMaker bool
}

// DepthUpdate represents a top-of-book diff depth update.
type DepthUpdate struct {
	Symbol string
	Bids   [][2]float64 // [price, qty]
	Asks   [][2]float64 // [price, qty]
	Time   int64
}
