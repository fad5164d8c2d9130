// Package format renders exact GRT amounts for people.
package format

import (
	"math/big"
	"strings"

	"github.com/semiotic-ai/allocopt/pkg/grt"
	"github.com/shopspring/decimal"
)

// GRT returns an amount with thousands separators and the token symbol
// (e.g., "1,234.5 GRT"). Fractional digits are kept in full.
func GRT(amount decimal.Decimal) string {
	return NumericGRT(amount) + " GRT"
}

// NumericGRT returns an amount with thousands separators but no symbol
// (e.g., "-1,234.000000000000000001").
func NumericGRT(amount decimal.Decimal) string {
	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	return sign + groupPositive(amount.Abs().String())
}

// Wei formats a wei amount as grouped GRT. Invalid amounts render as
// "invalid".
func Wei(wei *big.Int) string {
	amount, err := grt.WeiToDecimal(wei)
	if err != nil {
		return "invalid"
	}
	return GRT(amount)
}

func groupPositive(value string) string {
	intPart, decPart, hasDec := strings.Cut(value, ".")

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	if !hasDec {
		return intPart
	}
	return intPart + "." + decPart
}
