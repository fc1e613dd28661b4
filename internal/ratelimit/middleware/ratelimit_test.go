package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"cardgate/internal/ratelimit/metrics"
	"cardgate/internal/ratelimit/models"
	"cardgate/internal/ratelimit/store/memory"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/platform/circuit"
	"cardgate/pkg/requestcontext"
)

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string, models.Policy) (*models.Result, error) {
	return nil, errors.New("redis down")
}

// flakyLimiter fails while down is set and delegates otherwise.
type flakyLimiter struct {
	down  bool
	calls int
	next  Limiter
}

func (f *flakyLimiter) Allow(ctx context.Context, key string, p models.Policy) (*models.Result, error) {
	f.calls++
	if f.down {
		return nil, errors.New("redis down")
	}
	return f.next.Allow(ctx, key, p)
}

type recordingAuditor struct{ events []audit.Event }

func (r *recordingAuditor) Emit(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

type RateLimitSuite struct {
	suite.Suite
	logger *slog.Logger
	policy models.Policy
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.policy = models.Policy{Requests: 2, Window: time.Minute}
}

func (s *RateLimitSuite) serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/program_data/tok", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (s *RateLimitSuite) TestRateLimit() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	s.Run("rejects beyond budget with 429", func() {
		m := metrics.New(prometheus.NewRegistry())
		auditor := &recordingAuditor{}
		mw := New(memory.New(), s.logger,
			WithPolicy(models.ClassToken, s.policy),
			WithMetrics(m),
			WithAuditPublisher(auditor),
		)
		h := mw.RateLimit(models.ClassToken)(ok)

		s.Equal(http.StatusOK, s.serve(h, "198.51.100.1").Code)
		s.Equal(http.StatusOK, s.serve(h, "198.51.100.1").Code)
		rr := s.serve(h, "198.51.100.1")
		s.Equal(http.StatusTooManyRequests, rr.Code)
		s.NotEmpty(rr.Header().Get("Retry-After"))
		s.Contains(rr.Body.String(), `"error":"rate_limited"`)
		s.Equal(float64(1), testutil.ToFloat64(m.Rejected.WithLabelValues("token")))
		s.Require().Len(auditor.events, 1)
		s.Equal(string(audit.EventRateLimitExceeded), auditor.events[0].Action)

		s.Equal(http.StatusOK, s.serve(h, "198.51.100.2").Code, "other IPs keep their own budget")
	})

	s.Run("fails open when the limiter errors", func() {
		mw := New(erroringLimiter{}, s.logger, WithPolicy(models.ClassToken, s.policy))
		h := mw.RateLimit(models.ClassToken)(ok)
		s.Equal(http.StatusOK, s.serve(h, "198.51.100.1").Code)
	})

	s.Run("disabled passes through", func() {
		mw := New(erroringLimiter{}, s.logger, WithDisabled(true), WithPolicy(models.ClassToken, s.policy))
		h := mw.RateLimit(models.ClassToken)(ok)
		for i := 0; i < 5; i++ {
			s.Equal(http.StatusOK, s.serve(h, "198.51.100.1").Code)
		}
	})

	s.Run("class without policy is unlimited", func() {
		mw := New(memory.New(), s.logger)
		h := mw.RateLimit(models.ClassAuth)(ok)
		for i := 0; i < 5; i++ {
			s.Equal(http.StatusOK, s.serve(h, "198.51.100.1").Code)
		}
	})
}

func (s *RateLimitSuite) TestFallback() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	primary := &flakyLimiter{down: true, next: memory.New()}
	breaker := circuit.New("ratelimit:redis",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	m := metrics.New(prometheus.NewRegistry())
	mw := New(primary, s.logger,
		WithPolicy(models.ClassToken, s.policy),
		WithFallback(memory.New(), breaker),
		WithMetrics(m),
	)
	h := mw.RateLimit(models.ClassToken)(ok)

	s.Run("backend errors are answered by the fallback budget", func() {
		first := s.serve(h, "203.0.113.9")
		s.Equal(http.StatusOK, first.Code)
		s.Equal("degraded", first.Header().Get("X-RateLimit-Status"))
		s.Equal(http.StatusOK, s.serve(h, "203.0.113.9").Code)
		s.Equal(http.StatusTooManyRequests, s.serve(h, "203.0.113.9").Code, "fallback still enforces the policy")
		s.True(breaker.IsOpen())
		s.Equal(float64(2), testutil.ToFloat64(m.Fallback.WithLabelValues("token")))
	})

	s.Run("open breaker skips the backend", func() {
		calls := primary.calls
		s.serve(h, "203.0.113.10")
		s.Equal(calls, primary.calls)
	})

	s.Run("recovers after the cooldown", func() {
		primary.down = false
		now = now.Add(time.Minute)
		rr := s.serve(h, "203.0.113.11")
		s.Equal(http.StatusOK, rr.Code)
		s.Empty(rr.Header().Get("X-RateLimit-Status"))
		s.False(breaker.IsOpen())
	})
}
