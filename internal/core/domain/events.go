package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID            string
	UserID             string
	Email              string
	RegisteredAt       time.Time
	RegistrationMethod LoginMethod
	Verified           bool
}

// EmailVerifiedEvent represents the payload for auth.user.email_verified messages.
type EmailVerifiedEvent struct {
	EventID    string
	UserID     string
	Email      string
	VerifiedAt time.Time
}

// LoginOTPIssuedEvent represents the payload for auth.login.otp_issued messages.
type LoginOTPIssuedEvent struct {
	EventID   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Delivered bool
}

// AccountLockedEvent represents the payload for auth.user.locked messages.
type AccountLockedEvent struct {
	EventID     string
	UserID      string
	LockedAt    time.Time
	LockedUntil time.Time
	Attempts    int
}

// SessionAdmittedEvent represents the payload for auth.session.admitted messages.
type SessionAdmittedEvent struct {
	EventID     string
	UserID      string
	Method      LoginMethod
	AdmittedAt  time.Time
	ExpiresAt   time.Time
	IPAddress   string
	UserAgent   string
	ForceLogout bool
}

// ForceLogoutRequiredEvent represents the payload for auth.session.force_logout_required messages.
type ForceLogoutRequiredEvent struct {
	EventID        string
	UserID         string
	Method         LoginMethod
	ActiveSessions int
	RequestedAt    time.Time
	IPAddress      string
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	UserID    string
	Reason    string
	Count     int
	RevokedAt time.Time
}

// PasswordChangedEvent represents the payload for auth.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	UserID    string
	ChangedAt time.Time
	Via       string
}

// PasswordResetRequestedEvent represents the payload for auth.user.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
}
