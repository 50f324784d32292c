package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		role rbac.Role
		kind apperr.Kind
	}{
		{name: "kam forwards to credit", from: StatusUnderKAMReview, to: StatusPendingCreditReview, role: rbac.RoleKAM},
		{name: "client submits draft", from: StatusDraft, to: StatusUnderKAMReview, role: rbac.RoleClient},
		{name: "credit approves", from: StatusSentToNBFC, to: StatusApproved, role: rbac.RoleCredit},
		{name: "credit rejects", from: StatusPendingCreditReview, to: StatusRejected, role: rbac.RoleCredit},
		{name: "kam cannot approve", from: StatusSentToNBFC, to: StatusApproved, role: rbac.RoleKAM, kind: apperr.KindForbidden},
		{name: "kam cannot skip to approved", from: StatusUnderKAMReview, to: StatusApproved, role: rbac.RoleKAM, kind: apperr.KindStateViolation},
		{name: "nbfc cannot reject", from: StatusSentToNBFC, to: StatusRejected, role: rbac.RoleNBFC, kind: apperr.KindForbidden},
		{name: "no validator edge to disbursed", from: StatusApproved, to: StatusDisbursed, role: rbac.RoleCredit, kind: apperr.KindStateViolation},
		{name: "admin has no edges", from: StatusRejected, to: StatusClosed, role: rbac.RoleAdmin, kind: apperr.KindForbidden},
		{name: "closed is terminal", from: StatusClosed, to: StatusDraft, role: rbac.RoleCredit, kind: apperr.KindStateViolation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(tc.from, tc.to, tc.role)
			if tc.kind == "" {
				require.NoError(t, err)
				return
			}
			var transitionErr *TransitionError
			require.True(t, errors.As(err, &transitionErr), "expected *TransitionError, got %T", err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestOnlyCreditReachesApprovedOrRejected(t *testing.T) {
	for _, transition := range Transitions() {
		if transition.To != StatusApproved && transition.To != StatusRejected {
			continue
		}
		assert.Equal(t, []rbac.Role{rbac.RoleCredit}, transition.Roles, "%s -> %s", transition.From, transition.To)
	}
}

func TestNothingReachesDisbursed(t *testing.T) {
	for _, transition := range Transitions() {
		assert.NotEqual(t, StatusDisbursed, transition.To)
	}
}

func TestTransitionsAreOrdered(t *testing.T) {
	list := Transitions()
	require.NotEmpty(t, list)
	assert.Equal(t, StatusDraft, list[0].From)
	assert.Equal(t, StatusDisbursed, list[len(list)-1].From)
}

func TestNextStatuses(t *testing.T) {
	assert.Equal(t, []Status{StatusQueryWithClient, StatusPendingCreditReview}, NextStatuses(StatusUnderKAMReview, rbac.RoleKAM))
	assert.Equal(t, []Status{StatusQueryWithClient, StatusSentToNBFC, StatusRejected}, NextStatuses(StatusPendingCreditReview, rbac.RoleCredit))
	assert.Empty(t, NextStatuses(StatusApproved, rbac.RoleCredit))
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"Pending Credit Review": StatusPendingCreditReview,
		"sent_to_nbfc":          StatusSentToNBFC,
		"Sent to NBFC":          StatusSentToNBFC,
		" under-kam-review ":    StatusUnderKAMReview,
	}
	for input, want := range cases {
		got, ok := ParseStatus(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}
	_, ok := ParseStatus("archived")
	assert.False(t, ok)
	assert.Equal(t, "Sent to NBFC", StatusSentToNBFC.Label())
}
