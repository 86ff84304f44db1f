package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlowState is the orchestrator's state.
type FlowState string

const (
	StateIdle           FlowState = "idle"
	StateQuoted         FlowState = "quoted"
	StateDiscounted     FlowState = "discounted"
	StateSubmitting     FlowState = "submitting"
	StateOrderCreated   FlowState = "order_created"
	StateGatewayPending FlowState = "gateway_pending"
	StateVerifying      FlowState = "verifying"
	StateSettled        FlowState = "settled"
	StateRejected       FlowState = "rejected"
)

// InFlight reports the states during which a submission owns the checkout.
func (s FlowState) InFlight() bool {
	switch s {
	case StateSubmitting, StateOrderCreated, StateGatewayPending, StateVerifying:
		return true
	}
	return false
}

// Submittable reports whether a user submission may start from s.
func (s FlowState) String() string { return string(s) }

// SubmitInput carries the form fields that are only read at submission.
type SubmitInput struct {
	Currency string
	CardType string
}

// CheckoutView is a read-only copy of a checkout's state.
type CheckoutView struct {
	SessionID   string
	State       FlowState
	UserID      string
	Blocked     bool
	Purpose     Purpose
	TargetID    uint64
	Amount      *decimal.Decimal // nil when unset
	OrderID     string           // order of the current or last flow
	Quote       *AmountQuote
	Discount    *AppliedDiscount
	Coupons     []Coupon
	Wallet      Balance
	Card        Balance
	LastMessage string
	LastReceipt *Receipt
	UpdatedAt   time.Time
}

// Receipt records how one submission ended.
type Receipt struct {
	ID           string
	SessionID    string
	UserID       string
	OrderID      string
	PaymentID    string
	Purpose      Purpose
	TargetID     uint64
	Amount       decimal.Decimal
	Currency     string
	CouponCode   string
	State        FlowState
	Message      string
	ErrorClass   string
	ErrorMessage string
	// EffectError is set when the payment settled but its effect was not applied.
	EffectError error
	// EffectAmount is what the backend credited to the card, for card top-ups.
	EffectAmount *decimal.Decimal
	CreatedAt   time.Time
}

func (r *Receipt) Settled() bool { return r != nil && r.State == StateSettled }
