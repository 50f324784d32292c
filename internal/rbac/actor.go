package rbac

// Actor is the already-authenticated caller. Only the scope id that matches
// Role is meaningful; Admin carries none.
type Actor struct {
	ID       string
	Role     Role
	ClientID string
	KAMID    string
	NBFCID   string
	Email    string
}

// ScopeID returns the id that bounds the actor's visibility.
func (a Actor) ScopeID() string {
	switch a.Role {
	case RoleClient:
		return a.ClientID
	case RoleKAM:
		return a.KAMID
	case RoleNBFC:
		return a.NBFCID
	default:
		return ""
	}
}

// Identity returns the value recorded as the actor of audit rows: the email
// when known, otherwise the actor id.
func (a Actor) Identity() string {
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}
