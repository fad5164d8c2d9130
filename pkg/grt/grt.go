// Package grt converts between integer GRT wei and exact decimal GRT amounts.
//
// All arithmetic goes through math/big and shopspring/decimal; values never
// pass through float64, so any magnitude converts without loss.
package grt

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative, non-integer or malformed amounts.
var ErrInvalidAmount = errors.New("invalid GRT amount")

// MaxIntegerDigits bounds the integer part of a GRT amount. Together with
// the 18 decimal places it keeps wei values within 78 significant digits,
// enough for any uint256.
const MaxIntegerDigits = 78 - constants.GRTDecimals

var weiPerGRT = decimal.New(1, constants.GRTDecimals)

// WeiPerGRT returns 10^18, the number of wei in one GRT.
func WeiPerGRT() *big.Int {
	return weiPerGRT.BigInt()
}

// WeiToDecimal converts an amount of wei to GRT, i.e. wei / 10^18, exactly.
func WeiToDecimal(wei *big.Int) (decimal.Decimal, error) {
	if wei == nil {
		return decimal.Zero, fmt.Errorf("%w: nil wei value", ErrInvalidAmount)
	}
	if wei.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative wei value %s", ErrInvalidAmount, wei.String())
	}
	// NewFromBigInt copies its argument, the caller keeps ownership of wei.
	return decimal.NewFromBigInt(wei, -constants.GRTDecimals), nil
}

// WeiStringToDecimal parses a base-10 wei integer and converts it to GRT.
func WeiStringToDecimal(wei string) (decimal.Decimal, error) {
	n, err := ParseWei(wei)
	if err != nil {
		return decimal.Zero, err
	}
	return WeiToDecimal(n)
}

// ParseWei parses a non-negative base-10 integer. Signs, fractions, exponents
// and digit separators are rejected.
func ParseWei(wei string) (*big.Int, error) {
	trimmed := strings.TrimSpace(wei)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty wei value", ErrInvalidAmount)
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, wei)
		}
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, wei)
	}
	return n, nil
}

// ParseDecimal parses an exact GRT amount such as "1.5" or "2.5e3".
func ParseDecimal(grt string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(grt))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// DecimalToWei converts a GRT amount to wei. The amount is first quantized to
// 18 decimal places with banker's rounding. Amounts with more than
// MaxIntegerDigits integer digits are rejected before any expansion, so an
// exponent like 1e40000000 fails fast instead of building a huge integer.
func DecimalToWei(grt decimal.Decimal) (*big.Int, error) {
	if grt.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative GRT value %s", ErrInvalidAmount, grt.String())
	}
	if grt.IsZero() {
		return new(big.Int), nil
	}

	// The value lies in [10^(digits-1), 10^digits).
	digits := int64(grt.NumDigits()) + int64(grt.Exponent())
	if digits > MaxIntegerDigits {
		return nil, fmt.Errorf("%w: GRT value with %d integer digits exceeds %d",
			ErrInvalidAmount, digits, MaxIntegerDigits)
	}
	if digits < -constants.GRTDecimals {
		// Below 10^-19 GRT, which rounds to zero wei.
		return new(big.Int), nil
	}
	return grt.RoundBank(constants.GRTDecimals).Shift(constants.GRTDecimals).BigInt(), nil
}

// Format renders a wei amount as a GRT string, e.g. "1.5" for 1.5e18 wei.
func Format(wei *big.Int) (string, error) {
	d, err := WeiToDecimal(wei)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
