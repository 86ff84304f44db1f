package model

import (
	"xtrace-checkout/internal/domain"
)

// Target is what a payment is for. Each variant owns the id field the backend
// expects for its purpose; the set of variants is closed.
type Target interface {
	Purpose() Purpose
	ID() uint64
	applyTo(r *OrderFields)
}

type WalletTopup struct{ WalletID uint64 }

type CardTopup struct{ CardID uint64 }

type SubscriptionPayment struct{ SubscriptionID uint64 }

type BookingPayment struct{ BookingID uint64 }

func (t WalletTopup) Purpose() Purpose         { return PurposeWalletTopup }
func (t CardTopup) Purpose() Purpose           { return PurposeCardTopup }
func (t SubscriptionPayment) Purpose() Purpose { return PurposeSubscription }
func (t BookingPayment) Purpose() Purpose      { return PurposeBooking }

func (t WalletTopup) ID() uint64         { return t.WalletID }
func (t CardTopup) ID() uint64           { return t.CardID }
func (t SubscriptionPayment) ID() uint64 { return t.SubscriptionID }
func (t BookingPayment) ID() uint64      { return t.BookingID }

func (t WalletTopup) applyTo(r *OrderFields)         { r.WalletID = ptr(t.WalletID) }
func (t CardTopup) applyTo(r *OrderFields)           { r.NolCardID = ptr(t.CardID) }
func (t SubscriptionPayment) applyTo(r *OrderFields) { r.SubscriptionID = ptr(t.SubscriptionID) }
func (t BookingPayment) applyTo(r *OrderFields)      { r.BookingID = ptr(t.BookingID) }

// NewTarget builds the variant for purpose. id must be positive.
func NewTarget(p Purpose, id uint64) (Target, error) {
	if id == 0 {
		return nil, domain.NewValidationError(domain.ReasonInvalidTarget, "target id must be a positive integer")
	}
	switch p {
	case PurposeWalletTopup:
		return WalletTopup{WalletID: id}, nil
	case PurposeCardTopup:
		return CardTopup{CardID: id}, nil
	case PurposeSubscription:
		return SubscriptionPayment{SubscriptionID: id}, nil
	case PurposeBooking:
		return BookingPayment{BookingID: id}, nil
	}
	return nil, domain.NewValidationError(domain.ReasonInvalidTarget, "unknown payment purpose %q", string(p))
}

// OrderFields holds the purpose-specific id fields of an order request.
// Exactly one of them is set.
type OrderFields struct {
	WalletID       *uint64
	NolCardID      *uint64
	SubscriptionID *uint64
	BookingID      *uint64
}

func FieldsFor(t Target) OrderFields {
	var f OrderFields
	if t != nil {
		t.applyTo(&f)
	}
	return f
}

func ptr(v uint64) *uint64 { return &v }
