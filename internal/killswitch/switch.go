// Package killswitch implements the process-wide halt probe: a file
// sentinel OR'd with a bus-level flag. It is stateless and idempotent
// to trip/clear, safe to call from any goroutine.
package killswitch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blackforestdev/njord-quant/internal/bus"
)

// FlagKey is the bus flag name tripped/cleared alongside (or instead of) the
// file sentinel.
const FlagKey = "killswitch.halt"

// Switch probes both sources and reports tripped if either is set.
type Switch struct {
	Path string
	Bus  bus.Bus
}

// New returns a Switch probing path and b.
func New(path string, b bus.Bus) *Switch {
	return &Switch{Path: path, Bus: b}
}

// Tripped ORs the file-sentinel probe with the bus-flag probe.
func (s *Switch) Tripped(ctx context.Context) (bool, error) {
	if _, err := os.Stat(s.Path); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("killswitch: stat %s: %w", s.Path, err)
	}

	if s.Bus == nil {
		return false, nil
	}
	v, ok, err := s.Bus.GetFlag(ctx, FlagKey)
	if err != nil {
		return false, fmt.Errorf("killswitch: get bus flag: %w", err)
	}
	return ok && v == "1", nil
}

// Trip sets both the file sentinel and the bus flag.
func (s *Switch) Trip(ctx context.Context) error {
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("killswitch: create sentinel %s: %w", s.Path, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, _ = f.WriteString(now)
	if err := f.Close(); err != nil {
		return fmt.Errorf("killswitch: close sentinel %s: %w", s.Path, err)
	}
	if s.Bus != nil {
		if err := s.Bus.SetFlag(ctx, FlagKey, "1"); err != nil {
			return fmt.Errorf("killswitch: set bus flag: %w", err)
		}
	}
	return nil
}

// Clear removes the file sentinel and clears the bus flag.
func (s *Switch) Clear(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("killswitch: remove sentinel %s: %w", s.Path, err)
	}
	if s.Bus != nil {
		if err := s.Bus.SetFlag(ctx, FlagKey, "0"); err != nil {
			return fmt.Errorf("killswitch: clear bus flag: %w", err)
		}
	}
	return nil
}
