package journal

import (
	"fmt"
	"sync"
)

// Dir lazily opens and caches one Writer per named stream under a base
// directory, using a "one file per stream" naming convention
// (fills.{symbol}.ndjson, positions.{symbol}.ndjson, risk.decisions.ndjson,
// broker.orders.ndjson).
type Dir struct {
	base string

	mu      sync.Mutex
	writers map[string]*Writer
}

// NewDir returns a Dir rooted at base. The directory is created lazily, on
// first WriterFor call.
func NewDir(base string) *Dir {
	return &Dir{base: base, writers: make(map[string]*Writer)}
}

// WriterFor returns the Writer for the given stream file name (e.g.
// "fills.BTC_USDT.ndjson"), opening it on first use.
func (d *Dir) WriterFor(streamFile string) (*Writer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.writers[streamFile]; ok {
		return w, nil
	}
	w, err := NewWriter(fmt.Sprintf("%s/%s", d.base, streamFile))
	if err != nil {
		return nil, err
	}
	d.writers[streamFile] = w
	return w, nil
}

// Close closes every writer opened so far.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, w := range d.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
