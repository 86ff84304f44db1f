package model

import "github.com/shopspring/decimal"

// AmountQuote is the authoritative pre-discount amount for a target.
type AmountQuote struct {
	Target         Target
	OriginalAmount decimal.Decimal
}

// Balance is a wallet or card balance. Unavailable covers both "not found" and
// transport failures.
type Balance struct {
	Amount    decimal.Decimal
	Available bool
}

func UnavailableBalance() Balance { return Balance{} }

func (b Balance) String() string {
	if !b.Available {
		return "not available"
	}
	return b.Amount.StringFixed(2)
}

// UserSnapshot is what an identity change produces.
type UserSnapshot struct {
	UserID  string
	Blocked bool
	Wallet  Balance
	Card    Balance
	// Warning is set when the eligibility check failed and the gate failed open.
	Warning string
}

// MinorUnits converts an amount to the gateway's integer minor units (paise).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
