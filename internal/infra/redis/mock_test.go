package redis

import (
	"context"
	"sync"
	"time"

	"xtrace-checkout/internal/domain/model"

	"github.com/go-redis/redis/v8"
)

// memRedis is an in-memory RedisClient; expirations are recorded, not enforced.
type memRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Ping(ctx context.Context) error { return nil }

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = expiration
	return nil
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = expiration
	return true, nil
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.data[key] {
		n = n*10 + int64(c-'0')
	}
	n++
	m.data[key] = itoa(n)
	return n, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *memRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = expiration
	return nil
}

func (m *memRedis) DelIfEquals(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] == value {
		delete(m.data, key)
	}
	return nil
}

func (m *memRedis) Close() error { return nil }

type mockCatalog struct {
	calls       int
	CouponsFunc func(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error)
}

func (m *mockCatalog) Coupons(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error) {
	m.calls++
	return m.CouponsFunc(ctx, purpose)
}
