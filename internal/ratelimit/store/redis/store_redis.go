package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"cardgate/internal/ratelimit/models"
)

// Store is a fixed-window counter shared by every instance behind the same Redis.
type Store struct {
	client redis.Cmdable
	now    func() time.Time
}

func New(client redis.Cmdable) *Store {
	return &Store{client: client, now: time.Now}
}

// Allow increments key's counter. The first increment in a window sets the
// expiry, so the window is anchored at the first request.
func (s *Store) Allow(ctx context.Context, key string, policy models.Policy) (*models.Result, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, policy.Window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := int(incr.Val())
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = policy.Window
	}

	result := &models.Result{
		Allowed:   count <= policy.Requests,
		Limit:     policy.Requests,
		Remaining: max(0, policy.Requests-count),
		ResetAt:   s.now().Add(remaining),
	}
	if !result.Allowed {
		result.RetryAfter = int(math.Ceil(remaining.Seconds()))
	}
	return result, nil
}
