// Package paperoms implements the paper trading OMS: deterministic fill
// simulation with FIFO position accounting and realized-PnL math.
package paperoms

import (
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// epsilon treats a lot as exhausted once its remaining quantity is
// negligible, guarding against float accumulation error.
const epsilon = 1e-9

// lot is one open-position tranche: a remaining quantity (always a
// positive magnitude) entered at a price.
type lot struct {
	qty   float64
	price float64
}

// Book is a single symbol's FIFO position: a queue of open lots all on the
// same side, plus the scalar realized PnL accumulated by closing them.
type Book struct {
	Symbol      string
	Side        contracts.Side // meaningful only while len(lots) > 0
	lots        []lot
	RealizedPnL float64
}

// NewBook returns an empty (flat) Book for symbol.
func NewBook(symbol string) *Book {
	return &Book{Symbol: symbol}
}

// Fill applies one executed fill to the book's FIFO lot queue
// "Position math (FIFO)"):
//   - same side as the current open position (or flat): enqueue a new lot.
//   - opposite side: consume lots from the head until the fill quantity is
//     exhausted, realizing (exit-entry)*closed_qty*side_sign per lot; a
//     side_sign of +1 closes longs, -1 closes shorts. If the fill quantity
//     exceeds the open position, the remainder flips to start a new lot on
//     the opposite side.
// Fill returns the realized PnL delta produced by this single fill (0 for a
// fill that only opens or extends a position).
func (b *Book) Fill(side contracts.Side, qty, price float64) float64 {
	if len(b.lots) == 0 {
		b.Side = side
		b.lots = append(b.lots, lot{qty: qty, price: price})
		return 0
	}

	if side == b.Side {
		b.lots = append(b.lots, lot{qty: qty, price: price})
		return 0
	}

	sideSign := 1.0
	if b.Side == contracts.SideSell {
		sideSign = -1.0
	}

	var delta float64
	remaining := qty
	i := 0
	for remaining > epsilon && i < len(b.lots) {
		l := &b.lots[i]
		closeQty := l.qty
		if remaining < closeQty {
			closeQty = remaining
		}
		realized := (price - l.price) * closeQty * sideSign
		delta += realized
		b.RealizedPnL += realized
		l.qty -= closeQty
		remaining -= closeQty
		if l.qty <= epsilon {
			i++
		}
	}
	b.lots = b.lots[i:]

	if remaining > epsilon {
		b.Side = side
		b.lots = []lot{{qty: remaining, price: price}}
	}
	return delta
}

// Snapshot returns the signed open quantity and the quantity-weighted
// average entry price of the remaining lots (0 when flat).
func (b *Book) Snapshot() (qty, avgPrice float64) {
	var totalQty, totalCost float64
	for _, l := range b.lots {
		totalQty += l.qty
		totalCost += l.qty * l.price
	}
	if totalQty <= epsilon {
		return 0, 0
	}
	qty = totalQty
	if b.Side == contracts.SideSell {
		qty = -qty
	}
	return qty, totalCost / totalQty
}
