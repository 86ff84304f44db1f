package application

import (
	"context"
	"time"
)

// ---- small interfaces so the facade does not depend on concrete infra ----

// FlowRunner runs submitted flows in the background. Submit must not block.
type FlowRunner interface {
	Submit(task func(ctx context.Context) error) error
}

// FlowLocker grants one payment flow per user across processes.
type FlowLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// AttemptLimiter bounds repeated attempts, e.g. coupon guessing.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, int, error)
}
