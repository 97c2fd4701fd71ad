package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
	"CLP": {},
	"UGX": {},
	"XAF": {},
	"XOF": {},
}

// MinorUnitExponent returns the number of decimal places used by the currency.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// RoundMoney rounds an amount to the currency's minor unit.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnitExponent(currency))
}

// Apportion splits amount across weights proportionally, rounding each share to the
// currency's minor unit. The heaviest weight absorbs the rounding remainder so the
// shares always sum to amount.
func Apportion(amount decimal.Decimal, weights []decimal.Decimal, currency string) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return shares
	}

	total := decimal.Zero
	heaviest := 0
	for i, w := range weights {
		total = total.Add(w)
		if w.GreaterThan(weights[heaviest]) {
			heaviest = i
		}
	}
	if amount.IsZero() {
		return shares
	}
	if total.IsZero() {
		shares[heaviest] = amount
		return shares
	}

	allocated := decimal.Zero
	for i, w := range weights {
		if i == heaviest {
			continue
		}
		shares[i] = RoundMoney(amount.Mul(w).Div(total), currency)
		allocated = allocated.Add(shares[i])
	}
	shares[heaviest] = amount.Sub(allocated)
	return shares
}
