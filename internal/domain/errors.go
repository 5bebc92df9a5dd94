package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every request validation error
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrEmptyID          = fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	ErrNoVoucherKinds   = fmt.Errorf("%w: at least one voucher kind is required", ErrInvalidInput)
	ErrInvalidDateRange = fmt.Errorf("%w: from date must be before or equal to to date", ErrInvalidInput)
	ErrNoSelections     = fmt.Errorf("%w: at least one voucher must be selected", ErrInvalidInput)
)

// NotFoundError reports a missing voucher, remittance or bank transaction
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InconsistentStateError reports a document whose state does not allow the
// requested step. Batch operations skip the item and continue.
type InconsistentStateError struct {
	Entity string
	ID     string
	Reason string
}

func (e InconsistentStateError) Error() string {
	return fmt.Sprintf("%s %s is in an inconsistent state: %s", e.Entity, e.ID, e.Reason)
}

// ExternalResolutionFailure reports a counterparty bank account that could
// not be resolved. It is never fatal.
type ExternalResolutionFailure struct {
	Party   string
	Company string
	Err     error
}

func (e ExternalResolutionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not resolve bank account for party %s in %s: %v", e.Party, e.Company, e.Err)
	}
	return fmt.Sprintf("could not resolve bank account for party %s in %s", e.Party, e.Company)
}

func (e ExternalResolutionFailure) Unwrap() error {
	return e.Err
}

// ConcurrencyConflict reports lock or version contention. Callers may retry.
type ConcurrencyConflict struct {
	Entity string
	ID     string
}

func (e ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Entity, e.ID)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsInconsistentState(err error) bool {
	var target InconsistentStateError
	return errors.As(err, &target)
}

func IsConcurrencyConflict(err error) bool {
	var target ConcurrencyConflict
	return errors.As(err, &target)
}

// ErrorKind names the taxonomy bucket of err for logs and review records
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case IsNotFound(err):
		return "not_found"
	case IsInconsistentState(err):
		return "inconsistent_state"
	case IsConcurrencyConflict(err):
		return "concurrency_conflict"
	}
	var resolution ExternalResolutionFailure
	if errors.As(err, &resolution) {
		return "external_resolution"
	}
	return "internal"
}
