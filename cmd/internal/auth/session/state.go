package session

import "affittochiaro/cmd/identity"

type Status string

const (
	StatusAnonymous           Status = "anonymous"
	StatusAuthenticating      Status = "authenticating"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusAuthenticated       Status = "authenticated"
)

// PendingConfirmation exists between a sign-up and its email confirmation.
type PendingConfirmation struct {
	Email string        `json:"email"`
	Role  identity.Role `json:"role,omitempty"`
}

// State is an immutable snapshot of the machine.
//
// Session and Identity are set only when Status is authenticated; Pending
// only when it is pending_confirmation. Err overlays the stable status left
// by the last failed operation.
type State struct {
	Status   Status
	Session  Session
	Identity *identity.Identity
	Pending  *PendingConfirmation
	Err      *AuthError
}

func (s State) IsAuthenticated() bool { return s.Status == StatusAuthenticated }

// ErrorMessage returns the localized error, or "".
func (s State) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

func anonymousState() State { return State{Status: StatusAnonymous} }

func authenticatedState(sess Session, id identity.Identity) State {
	return State{Status: StatusAuthenticated, Session: sess, Identity: &id}
}

func pendingState(p PendingConfirmation) State {
	return State{Status: StatusPendingConfirmation, Pending: &p}
}
