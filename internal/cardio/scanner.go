package cardio

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/circuit"
)

const (
	defaultScanTimeout = 5 * time.Second
	maxConcurrentScans = 8
)

// Scanner polls every attached reader and identifies the cards it finds.
type Scanner struct {
	device     Device
	timeout    time.Duration
	logger     *slog.Logger
	breakerOpt []circuit.Option

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

type Option func(*Scanner)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithTimeout bounds a whole scan. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBreaker tunes the per-reader circuit breakers. A reader that keeps
// failing is skipped until its cooldown passes.
func WithBreaker(opts ...circuit.Option) Option {
	return func(s *Scanner) {
		s.breakerOpt = opts
	}
}

func NewScanner(device Device, opts ...Option) *Scanner {
	s := &Scanner{
		device:   device,
		timeout:  defaultScanTimeout,
		logger:   slog.Default(),
		breakers: make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) ListReaders(ctx context.Context) ([]string, error) {
	readers, err := s.device.ListReaders(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list card readers")
	}
	return readers, nil
}

// Scan reads every reader concurrently. Empty readers are skipped and a
// failing reader is logged and skipped; results keep reader order.
func (s *Scanner) Scan(ctx context.Context) ([]Card, error) {
	readers, err := s.ListReaders(ctx)
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no card readers found")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScans)

	found := make([]*Card, len(readers))
	for i, reader := range readers {
		breaker := s.breakerFor(reader)
		if !breaker.Allow() {
			s.logger.DebugContext(ctx, "skipping card reader with open circuit", "reader", reader)
			continue
		}
		g.Go(func() error {
			reading, err := s.device.Scan(ctx, reader)
			switch {
			case errors.Is(err, ErrNoCard):
				breaker.RecordSuccess()
				return nil
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				return err
			case err != nil:
				s.logger.WarnContext(ctx, "card reader scan failed", "reader", reader, "error", err)
				if _, change := breaker.RecordFailure(); change.Opened {
					s.logger.WarnContext(ctx, "card reader circuit opened", "reader", reader)
				}
				return nil
			}
			if _, change := breaker.RecordSuccess(); change.Closed {
				s.logger.InfoContext(ctx, "card reader circuit closed", "reader", reader)
			}
			card := Identify(*reading)
			found[i] = &card
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "card scan timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "card scan aborted")
	}

	cards := make([]Card, 0, len(found))
	for _, c := range found {
		if c != nil {
			cards = append(cards, *c)
		}
	}
	return cards, nil
}

// Read scans all readers and returns the card whose UID matches uid. The UID
// may use spaces, colons or neither as byte separators.
func (s *Scanner) Read(ctx context.Context, uid string) (*Card, error) {
	want, err := ParseHex(uid)
	if err != nil || len(want) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "uid must be a hex string")
	}
	cards, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		got, err := ParseHex(cards[i].UID)
		if err == nil && bytes.Equal(got, want) {
			return &cards[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "card not present on any reader")
}

func (s *Scanner) breakerFor(reader string) *circuit.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[reader]
	if !ok {
		b = circuit.New("cardreader:"+reader, s.breakerOpt...)
		s.breakers[reader] = b
	}
	return b
}
