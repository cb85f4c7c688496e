// Package errs holds the outcome kinds every core operation reports.
// Callers wrap them with context and match with errors.Is.
package errs

import "errors"

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidAmount     Error = "invalid amount"
	ErrInsufficientFunds Error = "insufficient funds"
	ErrInvalidTransition Error = "invalid transition"
	ErrCorruptData       Error = "corrupt data"
	ErrNotFound          Error = "not found"
	// ErrInvalidRequest is a malformed request that carries no amount.
	ErrInvalidRequest Error = "invalid request"
)

var kinds = []Error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrInvalidTransition,
	ErrCorruptData,
	ErrNotFound,
	ErrInvalidRequest,
}

// KindOf returns the outcome kind wrapped in err, or "" for a plain
// storage fault.
func KindOf(err error) Error {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ""
}

// Code is the snake_case label used in API responses and metrics.
func (e Error) Code() string {
	switch e {
	case ErrInvalidAmount:
		return "invalid_amount"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrCorruptData:
		return "corrupt_data"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidRequest:
		return "invalid_request"
	}
	return "internal"
}
