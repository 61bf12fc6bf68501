package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPrecision is the number of fractional digits kept on every amount
const MoneyPrecision int32 = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount to MoneyPrecision places, half up.
// decimal.Round rounds half away from zero, which is half up for the
// non-negative amounts the engine produces.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPrecision)
}

// Percent returns amount * rate / 100 without rounding
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// ClampZero returns amount, or zero when amount is negative
func ClampZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// NormalizeCurrency lower-cases an ISO 4217 code
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
