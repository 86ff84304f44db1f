package redis

import (
	"context"
	"time"
)

// RateLimiter counts attempts per key in fixed windows.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow records one attempt and reports whether it is within the limit,
// along with the attempts left in the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	n, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, 0, err
		}
	}
	left := r.limit - int(n)
	if left < 0 {
		return false, 0, nil
	}
	return true, left, nil
}
