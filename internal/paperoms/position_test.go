package paperoms

import (
	"testing"

	"github.com/blackforestdev/njord-quant/internal/contracts"
)

func TestFIFOCloseRealizesMatchedLots(t *testing.T) {
	b := NewBook("BTC/USDT")

	b.Fill(contracts.SideBuy, 1, 100)
	b.Fill(contracts.SideBuy, 1, 110)
	delta := b.Fill(contracts.SideSell, 1, 120)

	if delta != 20 {
		t.Fatalf("first close delta=%v, want 20", delta)
	}
	qty, avg := b.Snapshot()
	if qty != 1 || avg != 110 || b.RealizedPnL != 20 {
		t.Fatalf("qty=%v avg=%v realized=%v, want 1/110/20", qty, avg, b.RealizedPnL)
	}

	delta = b.Fill(contracts.SideSell, 1, 105)
	if delta != -5 {
		t.Fatalf("second close delta=%v, want -5", delta)
	}
	qty, avg = b.Snapshot()
	if qty != 0 || avg != 0 || b.RealizedPnL != 15 {
		t.Fatalf("qty=%v avg=%v realized=%v, want 0/0/15", qty, avg, b.RealizedPnL)
	}
}

func TestFIFOFlipSideOnOverclose(t *testing.T) {
	b := NewBook("ETH/USDT")
	b.Fill(contracts.SideBuy, 1, 100)
	b.Fill(contracts.SideSell, 3, 90) // closes the long (loss 10) and opens a 2-unit short at 90

	qty, avg := b.Snapshot()
	if qty != -2 || avg != 90 {
		t.Fatalf("qty=%v avg=%v, want -2/90 after flip", qty, avg)
	}
	if b.RealizedPnL != -10 {
		t.Fatalf("realized=%v, want -10", b.RealizedPnL)
	}
}

func TestFIFOShortCloseSignIsNegated(t *testing.T) {
	b := NewBook("SOL/USDT")
	b.Fill(contracts.SideSell, 1, 100) // open short at 100
	delta := b.Fill(contracts.SideBuy, 1, 90) // cover at 90, profit for the short

	if delta != 10 {
		t.Fatalf("delta=%v, want 10", delta)
	}
}
