// Package journal implements the append-only, line-delimited JSON writer
// every stream (fills, positions, risk decisions, broker orders) is
// journalled through.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends JSON lines to a single file, syncing before every
// WriteLine returns. There is deliberately no in-memory batching: a crash
// requires each call to flush to the OS before reporting success, which is
// simpler than a batching writer —
// batching across calls is exactly what the journal invariant forbids.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (creating if needed) path for O_APPEND writes.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// WriteLine marshals v, appends it as one line terminated by '\n', and
// fsyncs the file before returning.
func (w *Writer) WriteLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(b); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
