package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var _ adapter.CouponCatalog = (*CouponCache)(nil)

// CouponCache caches coupon listings per purpose. Only successful, non-empty
// listings are stored; a Redis failure falls through to the backend.
type CouponCache struct {
	inner adapter.CouponCatalog
	cache RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewCouponCache(inner adapter.CouponCatalog, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) *CouponCache {
	return &CouponCache{inner: inner, cache: cache, ttl: ttl, log: logger}
}

type cachedCoupon struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   string          `json:"discount_type"`
}

func couponKey(purpose model.Purpose) string { return "coupons:" + purpose.String() }

func (c *CouponCache) Coupons(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error) {
	key := couponKey(purpose)
	val, err := c.cache.Get(ctx, key)
	if err == nil {
		var cached []cachedCoupon
		if json.Unmarshal([]byte(val), &cached) == nil {
			metrics.IncCacheRequest("coupons", "hit")
			out := make([]model.Coupon, 0, len(cached))
			for _, cp := range cached {
				out = append(out, model.Coupon{Code: cp.Code, DiscountAmount: cp.DiscountAmount, DiscountType: model.DiscountType(cp.DiscountType)})
			}
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("coupon cache read failed")
	}

	metrics.IncCacheRequest("coupons", "miss")
	coupons, err := c.inner.Coupons(ctx, purpose)
	if err != nil {
		return nil, err
	}
	if len(coupons) > 0 {
		cached := make([]cachedCoupon, 0, len(coupons))
		for _, cp := range coupons {
			cached = append(cached, cachedCoupon{Code: cp.Code, DiscountAmount: cp.DiscountAmount, DiscountType: string(cp.DiscountType)})
		}
		b, _ := json.Marshal(cached)
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("coupon cache write failed")
		}
	}
	return coupons, nil
}
