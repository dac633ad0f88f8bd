package domain

// OutcomeKind tags a LoginOutcome.
type OutcomeKind string

const (
	// OutcomeAdmitted means a session was created and the token is usable.
	OutcomeAdmitted OutcomeKind = "admitted"
	// OutcomeForceLogoutRequired means another session exists; the token is
	// not attached to anything until the caller confirms a force logout.
	OutcomeForceLogoutRequired OutcomeKind = "force_logout_required"
)

// LoginOutcome is the result of session admission.
type LoginOutcome struct {
	Kind    OutcomeKind
	Token   string
	User    User
	Session *Session
}

// Admitted reports whether the outcome carries a live session.
func (o LoginOutcome) Admitted() bool {
	return o.Kind == OutcomeAdmitted
}
