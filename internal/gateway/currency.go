package gateway

import (
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
)

// ToSmallestUnit converts a major-unit amount into the provider's integer unit
// (kobo, cents). Zero-decimal currencies use a multiplier of 1.
func ToSmallestUnit(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(domain.MinorUnitExponent(currency)).Round(0).IntPart()
}

// FromSmallestUnit is the inverse of ToSmallestUnit.
func FromSmallestUnit(units int64, currency string) decimal.Decimal {
	return decimal.New(units, -domain.MinorUnitExponent(currency))
}
