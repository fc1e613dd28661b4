package memory

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cardgate/internal/ratelimit/models"
)

// staleAfter bounds how long an idle key's limiter is retained.
const staleAfter = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store is a per-key token bucket limiter for single-instance deployments.
type Store struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	now       func() time.Time
	lastPrune time.Time
}

type Option func(*Store)

// WithClock sets the time source used for refill and pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow spends one token from key's bucket. The bucket holds policy.Requests
// tokens and refills evenly across policy.Window.
func (s *Store) Allow(_ context.Context, key string, policy models.Policy) (*models.Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	v, ok := s.visitors[key]
	if !ok {
		every := policy.Window / time.Duration(policy.Requests)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), policy.Requests)}
		s.visitors[key] = v
	}
	v.lastSeen = now

	allowed := v.limiter.AllowN(now, 1)
	tokens := v.limiter.TokensAt(now)
	perToken := policy.Window / time.Duration(policy.Requests)

	result := &models.Result{
		Allowed:   allowed,
		Limit:     policy.Requests,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(time.Duration(float64(policy.Requests)-tokens) * perToken),
	}
	if !allowed {
		wait := time.Duration((1 - tokens) * float64(perToken))
		result.RetryAfter = int(math.Ceil(wait.Seconds()))
		if result.RetryAfter < 1 {
			result.RetryAfter = 1
		}
	}
	return result, nil
}

func (s *Store) pruneLocked(now time.Time) {
	if now.Sub(s.lastPrune) < time.Minute {
		return
	}
	s.lastPrune = now
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > staleAfter {
			delete(s.visitors, key)
		}
	}
}
