package port

import "time"

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordRehasher is implemented by hashers that can tell when a stored hash
// is weaker than what they would produce today.
type PasswordRehasher interface {
	NeedsRehash(encoded string) bool
}

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// TokenIssuer mints and verifies signed session tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// LinkClaims describes a verified single-use link token.
type LinkClaims struct {
	ID        string
	Subject   string
	ExpiresAt time.Time
}

// LinkSigner signs the tokens embedded in email verification and password reset links.
type LinkSigner interface {
	SignVerification(email string) (string, error)
	VerifyVerification(token string) (LinkClaims, error)
	SignReset(userID string) (string, error)
	VerifyReset(userID, token string) (LinkClaims, error)
}
