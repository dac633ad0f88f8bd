package domain

import (
	"crypto/subtle"
	"strings"
	"time"
)

// LoginMethod enumerates how a user last signed in.
type LoginMethod string

const (
	LoginMethodPassword LoginMethod = "password"
	LoginMethodGoogle   LoginMethod = "google"
	LoginMethodFacebook LoginMethod = "facebook"
	LoginMethodApple    LoginMethod = "apple"
)

var legacyLoginMethods = map[string]LoginMethod{
	"email/password": LoginMethodPassword,
	"password":       LoginMethodPassword,
	"google":         LoginMethodGoogle,
	"facebook":       LoginMethodFacebook,
	"apple":          LoginMethodApple,
}

// ParseLoginMethod accepts both the canonical values and the display names
// ("Email/Password", "Google", ...) older clients send.
func ParseLoginMethod(raw string) (LoginMethod, bool) {
	method, ok := legacyLoginMethods[strings.ToLower(strings.TrimSpace(raw))]
	return method, ok
}

// Provider identifies a federated identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// LoginMethod maps the provider onto the login method recorded on the user.
func (p Provider) LoginMethod() LoginMethod {
	switch p {
	case ProviderGoogle:
		return LoginMethodGoogle
	case ProviderFacebook:
		return LoginMethodFacebook
	default:
		return ""
	}
}

// Valid reports whether the provider is supported for federated login.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// User is the per-account document: identity, credentials, lockout state,
// the pending login challenge and the embedded session list.
type User struct {
	ID                 string
	Email              string
	FirstName          string
	MiddleName         string
	LastName           string
	Phone              string
	PhotoURL           string
	PasswordHash       string
	GoogleID           *string
	FacebookID         *string
	IsVerified         bool
	FailedAttempts     int
	LockUntil          *time.Time
	LastLoginMethod    LoginMethod
	LoginOTP           *int
	LoginOTPExpiry     *time.Time
	// PendingToken is the hash of the token held back by a force-logout
	// prompt. Only that token may confirm the prompt.
	PendingToken       string
	PendingTokenExpiry *time.Time
	Sessions           []Session
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalizeEmail lower-cases and trims an address for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the account can use the password login path.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsLocked reports whether the lockout window is still open at the supplied moment.
func (u User) IsLocked(at time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(at)
}

// LockRemaining returns how long the account stays locked, or zero.
func (u User) LockRemaining(at time.Time) time.Duration {
	if !u.IsLocked(at) {
		return 0
	}
	return u.LockUntil.Sub(at)
}

// FederatedID returns the external identifier linked for provider, if any.
func (u User) FederatedID(provider Provider) *string {
	switch provider {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderFacebook:
		return u.FacebookID
	default:
		return nil
	}
}

// SetFederatedID links (or re-links) the external identifier for provider.
func (u *User) SetFederatedID(provider Provider, uid string) {
	id := uid
	switch provider {
	case ProviderGoogle:
		u.GoogleID = &id
	case ProviderFacebook:
		u.FacebookID = &id
	}
}

// ClearLoginChallenge drops the pending OTP.
func (u *User) ClearLoginChallenge() {
	u.LoginOTP = nil
	u.LoginOTPExpiry = nil
}

// HoldPendingAdmission records the hashed token a force-logout prompt was raised for.
func (u *User) HoldPendingAdmission(tokenHash string, expiresAt time.Time) {
	u.PendingToken = tokenHash
	u.PendingTokenExpiry = &expiresAt
}

// PendingAdmissionMatches reports whether tokenHash names the held-back
// token and the hold has not lapsed.
func (u User) PendingAdmissionMatches(tokenHash string, at time.Time) bool {
	if u.PendingToken == "" || u.PendingTokenExpiry == nil || tokenHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.PendingToken), []byte(tokenHash)) == 1 && at.Before(*u.PendingTokenExpiry)
}

// ClearPendingAdmission drops any held-back token.
func (u *User) ClearPendingAdmission() {
	u.PendingToken = ""
	u.PendingTokenExpiry = nil
}

// FindSession returns the index of the session holding token, or -1.
func (u User) FindSession(token string) int {
	for i := range u.Sessions {
		if u.Sessions[i].Token == token {
			return i
		}
	}
	return -1
}

// Sanitized returns a copy safe to hand to API responses.
func (u User) Sanitized() User {
	out := u
	out.PasswordHash = ""
	out.LoginOTP = nil
	out.LoginOTPExpiry = nil
	out.PendingToken = ""
	out.PendingTokenExpiry = nil
	if len(u.Sessions) > 0 {
		out.Sessions = append([]Session(nil), u.Sessions...)
	}
	return out
}

// FederatedIdentity is an identity already verified by an external provider.
type FederatedIdentity struct {
	Provider    Provider
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// SplitDisplayName splits on the first space, falling back to "User"/"Unknown".
func SplitDisplayName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	first, last = name, ""
	if idx := strings.Index(name, " "); idx >= 0 {
		first = name[:idx]
		last = strings.TrimSpace(name[idx+1:])
	}
	if first == "" {
		first = "User"
	}
	if last == "" {
		last = "Unknown"
	}
	return first, last
}
