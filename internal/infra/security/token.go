package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// GenerateOTP returns a uniformly random six-digit login code.
func GenerateOTP() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return 0, fmt.Errorf("generate otp: %w", err)
	}
	return otpMin + int(n.Int64()), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// TokenFingerprint is a short, log-safe identifier for a bearer token.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	return HashToken(token)[:12]
}
