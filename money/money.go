// Package money is the fixed-point layer for balances, prices and
// distances. Every stored value has two decimal places and must fit a
// decimal(10,2) column, so its magnitude stays below 10^8.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ridebook/errs"
)

const (
	MaxDigits     = 10
	DecimalPlaces = 2
)

var (
	// MaxMagnitude is the first value a decimal(10,2) column cannot hold.
	MaxMagnitude = decimal.New(1, MaxDigits-DecimalPlaces)
	Zero         = decimal.Zero
	// ZeroText is what a repaired balance is set to.
	ZeroText = Format(decimal.Zero)
)

var (
	ErrMalformed  = errors.New("malformed decimal")
	ErrNull       = errors.New("null decimal")
	ErrOutOfRange = errors.New("decimal out of range")
)

// Parse reads a plain decimal string. Surrounding spaces are ignored.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty string", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return d, nil
}

// Quantize rounds to two places, half to even.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(DecimalPlaces)
}

// CheckRange fails when |d| does not fit the column.
func CheckRange(d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(MaxMagnitude) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return nil
}

// Format renders the canonical stored text, e.g. "12.50".
func Format(d decimal.Decimal) string {
	return Quantize(d).StringFixed(DecimalPlaces)
}

// Decode is the typed read of a stored column. NULL, unparsable and
// out-of-range text all fail; the result is quantized.
func Decode(raw *string) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, ErrNull
	}
	d, err := Parse(*raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckRange(d); err != nil {
		return decimal.Zero, err
	}
	return Quantize(d), nil
}

// ParseAmount validates a caller-supplied positive amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	d = Quantize(d)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", errs.ErrInvalidAmount, s)
	}
	if err := CheckRange(d); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	return d, nil
}
