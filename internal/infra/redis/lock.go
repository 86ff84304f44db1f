package redis

import (
	"context"
	"fmt"
	"time"

	"xtrace-checkout/internal/domain"

	"github.com/google/uuid"
)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker holds short-lived exclusive claims, e.g. one payment flow per
// user across all checkout instances.
type RedisLocker struct {
	cli RedisClient
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c}
}

// TryLock does not wait: a held key returns domain.ErrFlowInProgress.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrFlowInProgress
	}
	return token, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return l.cli.DelIfEquals(ctx, key, token)
}
