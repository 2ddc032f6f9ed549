package model

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrNotFound                  = errors.New("transaction not found")
	ErrAlreadyReversed           = errors.New("transaction already reversed")
	ErrCannotReverseReversal     = errors.New("a reversal cannot be reversed")
	ErrAlreadyOpened             = errors.New("registry already opened for the day")
	ErrInsufficientFundsForFloat = errors.New("counted safe balance does not cover the float")
	ErrForbidden                 = errors.New("actor is not allowed to perform this action")
	ErrConcurrencyConflict       = errors.New("concurrent balance update detected")
	ErrMaxRetriesExceeded        = errors.New("max retries exceeded")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InsufficientFundsError names the location that would go negative and by
// how much.
type InsufficientFundsError struct {
	Location  CashLocation `json:"location"`
	Available int64        `json:"available"`
	Required  int64        `json:"required"`
	Shortfall int64        `json:"shortfall"`
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: available %d, required %d, short by %d",
		e.Location, e.Available, e.Required, e.Shortfall)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NewInsufficientFundsForFloat builds the error returned when the counted safe
// cannot cover the requested float.
func NewInsufficientFundsForFloat(counted, float int64) error {
	return fmt.Errorf("%w: %w", ErrInsufficientFundsForFloat, &InsufficientFundsError{
		Location:  LocationSafe,
		Available: counted,
		Required:  float,
		Shortfall: float - counted,
	})
}

// IsBusinessError reports whether err is a rule violation detected before any
// write, as opposed to a storage or infrastructure fault.
func IsBusinessError(err error) bool {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return true
	}
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientFundsForFloat) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrCannotReverseReversal) ||
		errors.Is(err, ErrAlreadyOpened) ||
		errors.Is(err, ErrForbidden)
}

// Reason returns a short, stable label for err, used as a metric label.
func Reason(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, ErrInsufficientFundsForFloat):
		return "insufficient_funds_for_float"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyReversed):
		return "already_reversed"
	case errors.Is(err, ErrCannotReverseReversal):
		return "cannot_reverse_reversal"
	case errors.Is(err, ErrAlreadyOpened):
		return "already_opened"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrMaxRetriesExceeded):
		return "max_retries"
	}
	return "internal"
}
