package model

import (
	"strings"

	"xtrace-checkout/internal/domain"
)

// Purpose is the reason for a payment. Values match the backend's payment_type.
type Purpose string

const (
	PurposeWalletTopup  Purpose = "wallet_topup"
	PurposeCardTopup    Purpose = "nol_card_topup"
	PurposeSubscription Purpose = "subscription"
	PurposeBooking      Purpose = "booking"
)

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", domain.ErrUnknownPurpose
	}
	return p, nil
}

func (p Purpose) Valid() bool {
	switch p {
	case PurposeWalletTopup, PurposeCardTopup, PurposeSubscription, PurposeBooking:
		return true
	}
	return false
}

// Label is the human readable name used in acknowledgements.
func (p Purpose) Label() string {
	switch p {
	case PurposeWalletTopup:
		return "Wallet top-up"
	case PurposeCardTopup:
		return "Nol card top-up"
	case PurposeSubscription:
		return "Subscription payment"
	case PurposeBooking:
		return "Booking payment"
	}
	return string(p)
}

func (p Purpose) String() string { return string(p) }
