package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound indicates no account matches the supplied email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailUnverified indicates the account has not confirmed its email address.
	ErrEmailUnverified = errors.New("email not verified")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the lockout window is still open.
	ErrAccountLocked = errors.New("account locked")
	// ErrOTPNotRequested indicates no login code is pending for the account.
	ErrOTPNotRequested = errors.New("otp not requested")
	// ErrOTPExpired indicates the pending login code is past its expiry.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch indicates the submitted login code does not match.
	ErrOTPMismatch = errors.New("invalid otp")
	// ErrSessionExpired indicates the session hit its absolute expiry or the inactivity window.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInactive indicates the session was evicted for inactivity. It matches ErrSessionExpired.
	ErrSessionInactive = fmt.Errorf("%w: inactive", ErrSessionExpired)
	// ErrSessionNotFound indicates the token is not bound to any session of the user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidToken indicates a malformed, expired or foreign session token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmailTaken indicates registration hit an existing account.
	ErrEmailTaken = errors.New("user already exists")
	// ErrPasswordMismatch indicates the password confirmation differs.
	ErrPasswordMismatch = errors.New("password and confirm password do not match")
	// ErrLinkExpired indicates a verification or reset link is expired, invalid or already used.
	ErrLinkExpired = errors.New("link expired or invalid")
	// ErrPasswordNotSet indicates a federated-only account tried a password operation.
	ErrPasswordNotSet = errors.New("password not set for this account")
	// ErrIdentityLinked indicates the provider id already belongs to another account.
	ErrIdentityLinked = errors.New("identity linked to another account")
)

// ValidationError reports malformed input. It is always raised before any
// persistent state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidCredentialsError is a failed password attempt. Attempt is the
// failure count reached by this attempt, Limit the cap shown to users.
type InvalidCredentialsError struct {
	Attempt int
	Limit   int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials (%d/%d attempts)", e.Attempt, e.Limit)
}

// Is lets callers match with errors.Is(err, ErrInvalidCredentials).
func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// AccountLockedError carries the remaining lockout window.
type AccountLockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.MinutesRemaining())
}

// Is lets callers match with errors.Is(err, ErrAccountLocked).
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// MinutesRemaining rounds the remaining lock up to whole minutes.
func (e *AccountLockedError) MinutesRemaining() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}

// DependencyError wraps a store, mail or signing failure. Callers surface it
// as a generic server error.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

func dependency(op string, err error) error {
	var dep *DependencyError
	if errors.As(err, &dep) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
