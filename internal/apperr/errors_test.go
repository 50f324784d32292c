package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsUnwrapToKindSentinel(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
		status   int
	}{
		{name: "identity", err: IdentityMismatch("client id does not match"), sentinel: ErrIdentityMismatch, kind: KindIdentityMismatch, status: http.StatusForbidden},
		{name: "forbidden", err: Forbidden("credit only"), sentinel: ErrForbidden, kind: KindForbidden, status: http.StatusForbidden},
		{name: "state", err: StateViolation("OVER_BALANCE", "too much", nil), sentinel: ErrStateViolation, kind: KindStateViolation, status: http.StatusConflict},
		{name: "not found", err: NotFound("ledger entry not found"), sentinel: ErrNotFound, kind: KindNotFound, status: http.StatusNotFound},
		{name: "unavailable", err: Unavailable("fetch Clients", context.DeadlineExceeded), sentinel: ErrUnavailable, kind: KindUnavailable, status: http.StatusServiceUnavailable},
		{name: "validation", err: Validation("bad", nil), sentinel: ErrValidation, kind: KindValidation, status: http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			assert.Equal(t, tc.kind, KindOf(wrapped))
			assert.Equal(t, tc.status, KindOf(wrapped).Status())
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := Unavailable("fetch Clients", context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, IsClientError(errors.New("boom")))
	assert.True(t, IsClientError(NotFound("x")))
}

func TestFromValidator(t *testing.T) {
	type input struct {
		Reason string `validate:"required"`
	}
	err := FromValidator(validator.New().Struct(input{}))

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindValidation, appErr.Kind)
	assert.Equal(t, map[string]string{"Reason": "required"}, appErr.Details)
	assert.NoError(t, FromValidator(nil))
}
