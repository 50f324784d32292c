package workflow

import (
	"fmt"
	"sort"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
)

type edge struct {
	from Status
	to   Status
}

// transitions maps each permitted move to the roles that may make it.
// Nothing here reaches disbursed: that move belongs to the override path.
var transitions = map[edge][]rbac.Role{
	{StatusDraft, StatusUnderKAMReview}:                {rbac.RoleClient, rbac.RoleKAM},
	{StatusUnderKAMReview, StatusQueryWithClient}:      {rbac.RoleKAM},
	{StatusUnderKAMReview, StatusPendingCreditReview}:  {rbac.RoleKAM},
	{StatusQueryWithClient, StatusUnderKAMReview}:      {rbac.RoleClient, rbac.RoleKAM},
	{StatusPendingCreditReview, StatusQueryWithClient}: {rbac.RoleCredit},
	{StatusPendingCreditReview, StatusSentToNBFC}:      {rbac.RoleCredit},
	{StatusPendingCreditReview, StatusRejected}:        {rbac.RoleCredit},
	{StatusSentToNBFC, StatusApproved}:                 {rbac.RoleCredit},
	{StatusSentToNBFC, StatusRejected}:                 {rbac.RoleCredit},
	{StatusSentToNBFC, StatusQueryWithClient}:          {rbac.RoleCredit},
	{StatusRejected, StatusClosed}:                     {rbac.RoleCredit},
	{StatusDisbursed, StatusClosed}:                    {rbac.RoleCredit},
}

// TransitionError is the typed rejection of a status move. It unwraps to
// apperr.ErrForbidden when the move exists for other roles and to
// apperr.ErrStateViolation when it does not exist at all.
type TransitionError struct {
	From    Status
	To      Status
	Role    rbac.Role
	Allowed []rbac.Role
}

func (e *TransitionError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("role %q may not move a file from %s to %s", e.Role, e.From, e.To)
	}
	return fmt.Sprintf("no transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	if len(e.Allowed) > 0 {
		return apperr.Forbidden(e.Error())
	}
	return apperr.StateViolation("INVALID_TRANSITION", e.Error(),
		map[string]string{"from": string(e.From), "to": string(e.To)})
}

// ValidateTransition returns nil when role may move a file from -> to.
func ValidateTransition(from, to Status, role rbac.Role) error {
	allowed := transitions[edge{from, to}]
	for _, candidate := range allowed {
		if candidate == role {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Role: role, Allowed: allowed}
}

// Transition is one permitted move.
type Transition struct {
	From  Status      `json:"from"`
	To    Status      `json:"to"`
	Roles []rbac.Role `json:"roles"`
}

// Transitions lists the table in lifecycle order.
func Transitions() []Transition {
	rank := make(map[Status]int, len(Statuses))
	for i, status := range Statuses {
		rank[status] = i
	}
	out := make([]Transition, 0, len(transitions))
	for e, roles := range transitions {
		out = append(out, Transition{From: e.from, To: e.to, Roles: append([]rbac.Role(nil), roles...)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return rank[out[i].From] < rank[out[j].From]
		}
		return rank[out[i].To] < rank[out[j].To]
	})
	return out
}

// NextStatuses returns the statuses role may move a file to from.
func NextStatuses(from Status, role rbac.Role) []Status {
	var next []Status
	for _, t := range Transitions() {
		if t.From != from {
			continue
		}
		for _, candidate := range t.Roles {
			if candidate == role {
				next = append(next, t.To)
				break
			}
		}
	}
	return next
}
