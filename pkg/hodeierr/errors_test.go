package hodeierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKindAlone(t *testing.T) {
	err := Validation("name must not be blank")
	assert.True(t, errors.Is(err, New(KindValidation, "")))
	assert.False(t, errors.Is(err, New(KindConflict, "")))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindRepository, "save job", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestNotFound_FormatsEntityAndID(t *testing.T) {
	err := NotFound("job", "j1")
	assert.Equal(t, `not_found: job "j1" not found`, err.Error())
}

func TestQuotaExceededError_IsMatchesKindAndConcreteType(t *testing.T) {
	err := &QuotaExceededError{Violations: []Violation{{Resource: "cpu_cores", Limit: 4, Current: 5, ExcessPct: 25}}}
	assert.True(t, errors.Is(err, New(KindQuotaExceeded, "")))

	var qe *QuotaExceededError
	require := errors.As(err, &qe)
	assert.True(t, require)
	assert.Len(t, qe.Violations, 1)
}

func TestProvisioningError_IsMatchesProvisioningKind(t *testing.T) {
	err := NewProvisioningError(ProvisioningTimeout, "provision worker", errors.New("context deadline exceeded"))
	assert.True(t, errors.Is(err, New(KindProvisioning, "")))

	var perr *ProvisioningError
	require := errors.As(err, &perr)
	assert.True(t, require)
	assert.Equal(t, ProvisioningTimeout, perr.Code)
}

func TestRepositoryError_IsMatchesRepositoryKind(t *testing.T) {
	err := OperationFailed("find_job", errors.New("connection reset"))
	assert.True(t, errors.Is(err, New(KindRepository, "")))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"validation not retryable", Validation("bad input"), false},
		{"conflict not retryable", Conflict("already exists"), false},
		{"business rule not retryable", BusinessRule("terminal job"), false},
		{"worker lost is retryable", WorkerLost("w1"), true},
		{"cancelled not retryable", Cancelled("user requested"), false},
		{"plain error not retryable", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}
