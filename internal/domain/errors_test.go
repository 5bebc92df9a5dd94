package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid input", ErrEmptyID, "invalid_input"},
		{"not found", fmt.Errorf("load: %w", NotFoundError{Entity: "remittance", ID: "REM-1"}), "not_found"},
		{"inconsistent", InconsistentStateError{Entity: "Payment Entry", ID: "PE-1", Reason: "cancelled"}, "inconsistent_state"},
		{"conflict", ConcurrencyConflict{Entity: "remittance", ID: "REM-1"}, "concurrency_conflict"},
		{"resolution", ExternalResolutionFailure{Party: "SUP-1", Company: "ACME"}, "external_resolution"},
		{"other", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestExternalResolutionFailure_Unwrap(t *testing.T) {
	cause := errors.New("directory offline")
	err := ExternalResolutionFailure{Party: "SUP-1", Company: "ACME", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "directory offline")
}
