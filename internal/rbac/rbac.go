package rbac

import "strings"

type Role string
type Action string

const (
	RoleClient Role = "client"
	RoleKAM    Role = "kam"
	RoleCredit Role = "credit"
	RoleNBFC   Role = "nbfc"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead             Action = "read"
	ActionRaiseQuery       Action = "raise_query"
	ActionRequestPayout    Action = "request_payout"
	ActionDecidePayout     Action = "decide_payout"
	ActionFlagDispute      Action = "flag_dispute"
	ActionResolveDispute   Action = "resolve_dispute"
	ActionRecordCommission Action = "record_commission"
	// ActionOverride is the elevated path that may move a file past the
	// transition table, e.g. to disbursed.
	ActionOverride Action = "override"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleCredit:
		return action != ActionRequestPayout
	case RoleAdmin:
		return action == ActionOverride || action == ActionRecordCommission
	case RoleKAM:
		return action == ActionRead || action == ActionRaiseQuery || action == ActionFlagDispute
	case RoleClient:
		return action == ActionRead || action == ActionRaiseQuery || action == ActionRequestPayout || action == ActionFlagDispute
	case RoleNBFC:
		return action == ActionRead || action == ActionRaiseQuery
	default:
		return false
	}
}

// Normalize maps the labels used across the record store ("Client",
// "Credit Team", "credit_team", "NBFC Partner") onto a Role. Unknown labels
// return "" which every check treats as no access.
func Normalize(role string) Role {
	label := strings.ToLower(strings.TrimSpace(role))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	switch label {
	case "client":
		return RoleClient
	case "kam", "key account manager":
		return RoleKAM
	case "credit", "credit team", "credit user":
		return RoleCredit
	case "nbfc", "nbfc partner", "lender":
		return RoleNBFC
	case "admin", "administrator":
		return RoleAdmin
	default:
		return ""
	}
}
