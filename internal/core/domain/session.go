package domain

import "time"

// Session represents one authenticated device/browser binding embedded in a User.
type Session struct {
	Token        string
	UserAgent    string
	IP           string
	LastActivity time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Device carries the request metadata a session is bound to.
type Device struct {
	UserAgent string
	IP        string
}

// NewSession builds a session for token starting at the supplied moment.
func NewSession(token string, device Device, at time.Time, ttl time.Duration) Session {
	return Session{
		Token:        token,
		UserAgent:    device.UserAgent,
		IP:           device.IP,
		LastActivity: at,
		ExpiresAt:    at.Add(ttl),
		CreatedAt:    at,
	}
}

// Valid reports whether the session has not reached its absolute expiry.
func (s Session) Valid(at time.Time) bool {
	return at.Before(s.ExpiresAt)
}

// Idle reports whether the session has been inactive for longer than window.
func (s Session) Idle(at time.Time, window time.Duration) bool {
	return at.Sub(s.LastActivity) > window
}

// Touch records activity on the session.
func (s *Session) Touch(at time.Time) {
	s.LastActivity = at
}

// Session revocation reasons.
const (
	RevokeReasonLogout      = "logout"
	RevokeReasonLogoutAll   = "logout_all"
	RevokeReasonInactivity  = "inactivity"
	RevokeReasonExpired     = "expired"
	RevokeReasonForceLogout = "force_logout"
)

// PurgeExpired drops sessions whose absolute expiry has passed and returns them.
func (u *User) PurgeExpired(at time.Time) []Session {
	return u.purge(func(s Session) bool { return !s.Valid(at) })
}

// PurgeIdle drops sessions inactive for longer than window and returns them.
func (u *User) PurgeIdle(at time.Time, window time.Duration) []Session {
	return u.purge(func(s Session) bool { return s.Idle(at, window) })
}

func (u *User) purge(drop func(Session) bool) []Session {
	var removed []Session
	kept := u.Sessions[:0]
	for _, s := range u.Sessions {
		if drop(s) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	u.Sessions = kept
	return removed
}
