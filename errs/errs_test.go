package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Error
		code string
	}{
		{"nil", nil, "", "internal"},
		{"plain", errors.New("connection reset"), "", "internal"},
		{"direct", ErrNotFound, ErrNotFound, "not_found"},
		{"wrapped", fmt.Errorf("ride 42: %w", ErrInvalidTransition), ErrInvalidTransition, "invalid_transition"},
		{"double wrapped", fmt.Errorf("complete: %w", fmt.Errorf("user 7: %w", ErrInsufficientFunds)), ErrInsufficientFunds, "insufficient_funds"},
		{"corrupt", fmt.Errorf("balance %q: %w", "abc", ErrCorruptData), ErrCorruptData, "corrupt_data"},
		{"amount", fmt.Errorf("price: %w", ErrInvalidAmount), ErrInvalidAmount, "invalid_amount"},
		{"request", fmt.Errorf("destination: %w", ErrInvalidRequest), ErrInvalidRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindOf(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.code, got.Code())
		})
	}
}
