package model

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountFlat    DiscountType = "flat"
	DiscountPercent DiscountType = "percent"
)

// Coupon is an offer listed for a purpose. Percent vs flat is resolved by the backend.
type Coupon struct {
	Code           string
	DiscountAmount decimal.Decimal
	DiscountType   DiscountType
}

// AppliedDiscount is derived from the quote it was applied to and is dropped
// whenever the purpose, target or quote changes.
type AppliedDiscount struct {
	CouponCode     string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// NewAppliedDiscount computes base - discount rounded to two decimals.
func NewAppliedDiscount(code string, base, discount decimal.Decimal) *AppliedDiscount {
	return &AppliedDiscount{
		CouponCode:     code,
		DiscountAmount: discount,
		FinalAmount:    base.Sub(discount).Round(2),
	}
}
