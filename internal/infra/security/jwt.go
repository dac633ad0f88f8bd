package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/RASA-RCS/userauth-service/internal/core/port"
)

var (
	// ErrInvalidToken indicates the token is malformed, forged or carries the wrong claims.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken indicates the token signature is valid but its lifetime has passed.
	ErrExpiredToken = errors.New("jwt: token expired")
	// ErrSecretMissing indicates a signer was built without key material.
	ErrSecretMissing = errors.New("jwt: signing secret is required")
)

// SessionClaims are embedded in session tokens.
type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 session tokens bound to a user id.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer constructs an issuer for the supplied secret and lifetime.
func NewJWTIssuer(secret, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt: invalid ttl %s", ttl)
	}
	return &JWTIssuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for iat/exp, primarily for tests.
func (s *JWTIssuer) WithClock(clock func() time.Time) *JWTIssuer {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue mints a token for userID. Each token carries a fresh jti, so two tokens
// minted within the same second still differ.
func (s *JWTIssuer) Issue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("jwt: user id is required")
	}

	now := s.now().UTC()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and lifetime of token and returns the user id it names.
func (s *JWTIssuer) Verify(token string) (string, error) {
	claims := &SessionClaims{}
	if err := parseHS256(token, s.secret, claims, s.now); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// LinkClaims are embedded in email verification and password reset links.
type LinkClaims struct {
	Email  string `json:"email,omitempty"`
	UserID string `json:"userID,omitempty"`
	jwt.RegisteredClaims
}

// LinkSigner signs the single-use tokens carried by emailed links.
// Reset tokens are keyed with the user id prepended to the reset secret so a
// token minted for one account never verifies for another.
type LinkSigner struct {
	verificationKey []byte
	resetKey        string
	verificationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

// NewLinkSigner constructs a LinkSigner.
func NewLinkSigner(verificationKey, resetKey string, verificationTTL, resetTTL time.Duration) (*LinkSigner, error) {
	if strings.TrimSpace(verificationKey) == "" || strings.TrimSpace(resetKey) == "" {
		return nil, ErrSecretMissing
	}
	if verificationTTL <= 0 || resetTTL <= 0 {
		return nil, fmt.Errorf("jwt: link ttl must be positive")
	}
	return &LinkSigner{
		verificationKey: []byte(verificationKey),
		resetKey:        resetKey,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		now:             time.Now,
	}, nil
}

// WithClock overrides the time source, primarily for tests.
func (l *LinkSigner) WithClock(clock func() time.Time) *LinkSigner {
	if clock != nil {
		l.now = clock
	}
	return l
}

// SignVerification mints the token for an email verification link.
func (l *LinkSigner) SignVerification(email string) (string, error) {
	now := l.now().UTC()
	claims := LinkClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.verificationTTL)),
			ID:        uuid.NewString(),
		},
	}
	return sign(claims, l.verificationKey)
}

// VerifyVerification validates a verification link token.
func (l *LinkSigner) VerifyVerification(token string) (port.LinkClaims, error) {
	claims := &LinkClaims{}
	if err := parseHS256(token, l.verificationKey, claims, l.now); err != nil {
		return port.LinkClaims{}, err
	}
	if claims.Email == "" {
		return port.LinkClaims{}, ErrInvalidToken
	}
	return toPortClaims(claims, claims.Email), nil
}

// SignReset mints the token for a password reset link addressed to userID.
func (l *LinkSigner) SignReset(userID string) (string, error) {
	now := l.now().UTC()
	claims := LinkClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.resetTTL)),
			ID:        uuid.NewString(),
		},
	}
	return sign(claims, l.resetSecret(userID))
}

// VerifyReset validates a reset token against the user id taken from the link path.
func (l *LinkSigner) VerifyReset(userID, token string) (port.LinkClaims, error) {
	claims := &LinkClaims{}
	if err := parseHS256(token, l.resetSecret(userID), claims, l.now); err != nil {
		return port.LinkClaims{}, err
	}
	if claims.UserID != userID {
		return port.LinkClaims{}, ErrInvalidToken
	}
	return toPortClaims(claims, claims.UserID), nil
}

func (l *LinkSigner) resetSecret(userID string) []byte {
	return []byte(userID + l.resetKey)
}

func toPortClaims(claims *LinkClaims, subject string) port.LinkClaims {
	out := port.LinkClaims{ID: claims.ID, Subject: subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}

func sign(claims jwt.Claims, key []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func parseHS256(token string, key []byte, claims jwt.Claims, now func() time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
