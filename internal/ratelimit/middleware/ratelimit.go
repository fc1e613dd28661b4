package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"cardgate/internal/ratelimit/metrics"
	"cardgate/internal/ratelimit/models"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/platform/circuit"
	"cardgate/pkg/platform/httputil"
	"cardgate/pkg/requestcontext"
)

// Limiter is satisfied by the memory and Redis stores.
type Limiter interface {
	Allow(ctx context.Context, key string, policy models.Policy) (*models.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Middleware struct {
	limiter  Limiter
	policies map[models.EndpointClass]models.Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	disabled bool

	fallback Limiter
	breaker  *circuit.Breaker
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Middleware) {
		m.auditor = p
	}
}

// WithPolicy overrides the budget for one class.
func WithPolicy(class models.EndpointClass, policy models.Policy) Option {
	return func(m *Middleware) {
		m.policies[class] = policy
	}
}

// WithFallback routes checks to fallback while breaker is open. Responses
// served from the fallback carry X-RateLimit-Status: degraded.
func WithFallback(fallback Limiter, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = fallback
		m.breaker = breaker
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter:  limiter,
		logger:   logger,
		policies: make(map[models.EndpointClass]models.Policy),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit enforces the class budget per client IP. When both the limiter and
// any fallback fail the request is let through.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := m.policies[class]
			if m.disabled || !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, degraded, err := m.check(ctx, class, models.Key(class, ip), policy)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				m.metrics.IncrementFailedOpen(string(class))
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				m.metrics.IncrementRejected(string(class))
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.auditor != nil {
					_ = m.auditor.Emit(ctx, audit.Event{
						Action:    string(audit.EventRateLimitExceeded),
						Subject:   string(class),
						Decision:  "denied",
						RequestID: requestcontext.RequestID(ctx),
						ActorID:   ip,
					})
				}
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) check(ctx context.Context, class models.EndpointClass, key string, policy models.Policy) (*models.Result, bool, error) {
	if m.fallback == nil || m.breaker == nil {
		result, err := m.limiter.Allow(ctx, key, policy)
		return result, false, err
	}
	if !m.breaker.Allow() {
		result, err := m.fallback.Allow(ctx, key, policy)
		return result, true, err
	}

	result, err := m.limiter.Allow(ctx, key, policy)
	if err == nil {
		if _, change := m.breaker.RecordSuccess(); change.Closed {
			m.logger.InfoContext(ctx, "rate limiter recovered", "breaker", m.breaker.Name())
		}
		return result, false, nil
	}

	if _, change := m.breaker.RecordFailure(); change.Opened {
		m.logger.WarnContext(ctx, "rate limiter degraded to in-process fallback",
			"breaker", m.breaker.Name(),
			"error", err,
		)
	}
	m.metrics.IncrementFallback(string(class))
	result, err = m.fallback.Allow(ctx, key, policy)
	return result, true, err
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limited",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
