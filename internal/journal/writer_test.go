package journal

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteLineAppendsAndSyncsBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.decisions.ndjson")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteLine(map[string]any{"intent_id": "a", "allowed": true}); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := w.WriteLine(map[string]any{"intent_id": "b", "allowed": false}); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestDirWriterForCachesPerStream(t *testing.T) {
	d := NewDir(t.TempDir())

	w1, err := d.WriterFor("fills.BTC_USDT.ndjson")
	if err != nil {
		t.Fatalf("WriterFor: %v", err)
	}
	w2, err := d.WriterFor("fills.BTC_USDT.ndjson")
	if err != nil {
		t.Fatalf("WriterFor: %v", err)
	}
	if w1 != w2 {
		t.Fatal("expected the same Writer instance for repeated calls with the same stream file")
	}
	defer d.Close()
}
