package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebook/errs"
)

func strPtr(s string) *string { return &s }

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     *string
		want    string
		wantErr error
	}{
		{"plain", strPtr("30.00"), "30.00", nil},
		{"no fraction", strPtr("7"), "7.00", nil},
		{"spaces", strPtr(" 12.5 "), "12.50", nil},
		{"rounds half even down", strPtr("0.125"), "0.12", nil},
		{"rounds half even up", strPtr("0.135"), "0.14", nil},
		{"largest", strPtr("99999999.99"), "99999999.99", nil},
		{"negative in range", strPtr("-3.10"), "-3.10", nil},
		{"null", nil, "", ErrNull},
		{"garbage", strPtr("abc"), "", ErrMalformed},
		{"empty", strPtr(""), "", ErrMalformed},
		{"nan", strPtr("NaN"), "", ErrMalformed},
		{"at limit", strPtr("100000000.00"), "", ErrOutOfRange},
		{"far out", strPtr("1e12"), "", ErrOutOfRange},
		{"negative out", strPtr("-100000000"), "", ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"ok", "10.00", "10.00", false},
		{"extra places", "10.005", "10.00", false},
		{"zero", "0", "", true},
		{"rounds to zero", "0.004", "", true},
		{"negative", "-1.00", "", true},
		{"text", "ten", "", true},
		{"too large", "100000000", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.00", ZeroText)
	assert.Equal(t, "35.00", Format(decimal.RequireFromString("35")))
	assert.Equal(t, "1.10", Format(decimal.RequireFromString("1.1")))
}
