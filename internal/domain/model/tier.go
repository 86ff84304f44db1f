package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CardTier is a Nol card category with a minimum top-up.
type CardTier string

const (
	CardTierGold     CardTier = "gold"
	CardTierSilver   CardTier = "silver"
	CardTierStandard CardTier = "standard"
)

var tierMinimums = map[CardTier]decimal.Decimal{
	CardTierGold:     decimal.NewFromInt(100),
	CardTierSilver:   decimal.NewFromInt(50),
	CardTierStandard: decimal.NewFromInt(20),
}

// ParseCardTier matches case-insensitively; anything unknown is Standard.
func ParseCardTier(name string) CardTier {
	switch CardTier(strings.ToLower(strings.TrimSpace(name))) {
	case CardTierGold:
		return CardTierGold
	case CardTierSilver:
		return CardTierSilver
	}
	return CardTierStandard
}

// TierMinimum returns the minimum top-up for a tier name as typed by the user.
func TierMinimum(name string) decimal.Decimal {
	return ParseCardTier(name).Minimum()
}

func (t CardTier) Minimum() decimal.Decimal { return tierMinimums[ParseCardTier(string(t))] }
