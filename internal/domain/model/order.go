package model

import (
	"github.com/shopspring/decimal"
)

// PaymentRequest is the payload sent to create an order.
type PaymentRequest struct {
	UserID     string
	Amount     decimal.Decimal
	Currency   string
	Target     Target
	CouponCode string // empty when no coupon was applied
	CardType   string // card top-up only, as selected by the user
}

func (r *PaymentRequest) Purpose() Purpose {
	if r.Target == nil {
		return ""
	}
	return r.Target.Purpose()
}

// Order is created by the backend; only its id is used afterwards.
type Order struct {
	OrderID          string
	OriginalAmount   decimal.Decimal
	DiscountedAmount decimal.Decimal
}

// ChargeAmount is what the gateway collects: the discounted amount when the
// backend reports one, otherwise the requested amount.
func (o *Order) ChargeAmount(requested decimal.Decimal) decimal.Decimal {
	if o.DiscountedAmount.IsPositive() {
		return o.DiscountedAmount
	}
	return requested
}

// GatewayOrder is what the gateway collaborator receives.
type GatewayOrder struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Description string
}

// GatewaySuccess is the gateway's success callback.
type GatewaySuccess struct {
	OrderID   string
	PaymentID string
	Signature string
}

// VerificationResult is the backend's answer to a verify call.
type VerificationResult struct {
	Verified bool
	Purpose  Purpose
	Message  string
	Error    string
}

// TopupResult is the backend's answer to a card top-up.
type TopupResult struct {
	Amount decimal.Decimal
}
