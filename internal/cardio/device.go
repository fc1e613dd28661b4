package cardio

import (
	"context"
	"fmt"
	"sort"
	"strings"

	strs "cardgate/pkg/platform/strings"
)

// Device is a reader backend such as PC/SC or the simulated device.
type Device interface {
	ListReaders(ctx context.Context) ([]string, error)
	// Scan returns ErrNoCard when the reader is empty.
	Scan(ctx context.Context, reader string) (*Reading, error)
}

// SimulatedDevice serves fixed readings, for development and tests.
type SimulatedDevice struct {
	readers []string
	cards   map[string]Reading
}

// NewSimulatedDevice parses entries of the form "reader=ATR" or
// "reader=ATR,UID" with hex values. An empty ATR declares an empty reader.
func NewSimulatedDevice(entries []string) (*SimulatedDevice, error) {
	d := &SimulatedDevice{cards: make(map[string]Reading)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("simulated reader %q: want reader=ATR", entry)
		}
		d.readers = append(d.readers, name)

		atrHex, uidHex, _ := strings.Cut(strings.TrimSpace(value), ",")
		if atrHex == "" {
			continue
		}
		atr, err := ParseHex(atrHex)
		if err != nil {
			return nil, fmt.Errorf("simulated reader %q: bad ATR: %w", name, err)
		}
		uid, err := ParseHex(uidHex)
		if err != nil {
			return nil, fmt.Errorf("simulated reader %q: bad UID: %w", name, err)
		}
		d.cards[name] = Reading{Reader: name, ATR: atr, UID: uid}
	}
	d.readers = strs.DedupeAndTrim(d.readers)
	sort.Strings(d.readers)
	return d, nil
}

func (d *SimulatedDevice) ListReaders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.readers...), nil
}

func (d *SimulatedDevice) Scan(ctx context.Context, reader string) (*Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := d.cards[reader]
	if !ok {
		return nil, ErrNoCard
	}
	return &r, nil
}
