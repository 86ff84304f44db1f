package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain/model"
)

// UserStatus is the raw eligibility answer; a user is blocked when either flag is set.
type UserStatus struct {
	Blocked  bool
	Inactive bool
}

// LedgerBackend is the hex port for the wallet/card/coupon/order backend.
// Non-2xx replies are returned as *domain.BackendError.
type LedgerBackend interface {
	WalletBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	CardBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	UserStatus(ctx context.Context, userID string) (UserStatus, error)

	PaymentAmount(ctx context.Context, purpose model.Purpose, targetID uint64) (decimal.Decimal, error)

	CouponCatalog

	// ApplyCoupon returns the discount the backend grants for code on amount.
	ApplyCoupon(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error)

	CreateOrder(ctx context.Context, req *model.PaymentRequest) (*model.Order, error)
	VerifyPayment(ctx context.Context, success model.GatewaySuccess) (*model.VerificationResult, error)
	CardTopup(ctx context.Context, userID string, cardID uint64, amount decimal.Decimal, cardType string) (*model.TopupResult, error)
}

// CouponCatalog lists the coupons offered for a purpose. Split out so it can be cached.
type CouponCatalog interface {
	Coupons(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error)
}
