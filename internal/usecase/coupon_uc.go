package usecase

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

type CouponUseCase interface {
	// List never fails; coupons are an enhancement, so errors yield an empty list.
	List(ctx context.Context, purpose model.Purpose) []model.Coupon
	// Apply asks the backend for the discount on base. Failures are *domain.CouponError.
	Apply(ctx context.Context, code string, base decimal.Decimal) (*model.AppliedDiscount, error)
}

type couponUC struct {
	catalog adapter.CouponCatalog
	backend adapter.LedgerBackend
	log     *zerolog.Logger
}

// NewCouponUseCase uses catalog for listings (possibly cached) and backend for applying.
func NewCouponUseCase(catalog adapter.CouponCatalog, backend adapter.LedgerBackend, logger *zerolog.Logger) *couponUC {
	if catalog == nil {
		catalog = backend
	}
	return &couponUC{catalog: catalog, backend: backend, log: logger}
}

func (u *couponUC) List(ctx context.Context, purpose model.Purpose) []model.Coupon {
	defer logging.TraceDuration(u.log, "CouponUC.List")()

	coupons, err := u.catalog.Coupons(ctx, purpose)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("purpose", purpose.String()).Msg("error fetching coupons")
		return []model.Coupon{}
	}
	if coupons == nil {
		return []model.Coupon{}
	}
	return coupons
}

func (u *couponUC) Apply(ctx context.Context, code string, base decimal.Decimal) (*model.AppliedDiscount, error) {
	defer logging.TraceDuration(u.log, "CouponUC.Apply")()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &domain.CouponError{Message: "coupon code is required"}
	}
	discount, err := u.backend.ApplyCoupon(ctx, code, base)
	if err != nil {
		logging.With(ctx, u.log).Debug().Err(err).Str("coupon", code).Msg("coupon rejected")
		return nil, &domain.CouponError{Message: domain.ErrorMessage(err)}
	}
	return model.NewAppliedDiscount(code, base, discount), nil
}
