package contracts

// Event is the closed union of message kinds a strategy can observe,
// expressed as a tagged record rather than Go's empty interface{} so
// dispatch stays an exhaustive switch instead of a dynamic type check.
type Event struct {
	Trade  *TradeEvent
	Book   *BookEvent
	Ticker *TickerEvent
}

func TradeEventOf(t TradeEvent) Event   { return Event{Trade: &t} }
func BookEventOf(b BookEvent) Event     { return Event{Book: &b} }
func TickerEventOf(t TickerEvent) Event { return Event{Ticker: &t} }

// Symbol returns the symbol the event concerns, and false for an empty Event.
func (e Event) Symbol() (string, bool) {
	switch {
	case e.Trade != nil:
		return e.Trade.Symbol, true
	case e.Book != nil:
		return e.Book.Symbol, true
	case e.Ticker != nil:
		return e.Ticker.Symbol, true
	default:
		return "", false
	}
}
