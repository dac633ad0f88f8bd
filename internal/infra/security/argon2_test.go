package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2HasherHashAndVerifySuccess(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant {
		t.Fatalf("unexpected variant: %s", parts[0])
	}
	if parts[1] != argon2Version {
		t.Fatalf("unexpected version: %s", parts[1])
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}
}

func TestArgon2HasherRejectsWrongPassword(t *testing.T) {
	hasher := newTestHasher(t)

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestArgon2HasherSaltsEachHash(t *testing.T) {
	hasher := newTestHasher(t)

	first, _ := hasher.Hash("same-password")
	second, _ := hasher.Hash("same-password")
	if first == second {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestArgon2HasherInvalidFormat(t *testing.T) {
	hasher := newTestHasher(t)
	if _, err := hasher.Verify("password", "invalid-format"); err == nil {
		t.Fatal("Verify expected to return error for invalid format")
	}
}

func TestArgon2HasherEmptyInputs(t *testing.T) {
	hasher := newTestHasher(t)
	ok, err := hasher.Verify("", "")
	if err != nil {
		t.Fatalf("Verify returned error for empty inputs: %v", err)
	}
	if ok {
		t.Fatal("Verify should return false for empty inputs")
	}
}

func TestArgon2HasherAcceptsBcryptHashes(t *testing.T) {
	hasher := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("old-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword returned error: %v", err)
	}

	ok, err := hasher.Verify("old-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("wrong", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected mismatch for wrong password, ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2HasherRejectsWeakConfig(t *testing.T) {
	cfg := DefaultArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2Hasher(cfg); err == nil {
		t.Fatal("expected error for memory below minimum")
	}
}

func TestArgon2HasherNeedsRehash(t *testing.T) {
	hasher := newTestHasher(t)

	current, err := hasher.Hash("pw")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hasher.NeedsRehash(current) {
		t.Fatal("hash produced with current parameters must not need a rehash")
	}

	legacy, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword returned error: %v", err)
	}
	if !hasher.NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hashes must be upgraded")
	}

	stronger, err := NewArgon2Hasher(Argon2Config{Memory: 16 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	if !stronger.NeedsRehash(current) {
		t.Fatal("hash below the configured cost must be upgraded")
	}

	if hasher.NeedsRehash("") || hasher.NeedsRehash("garbage") {
		t.Fatal("empty or unparseable hashes are left alone")
	}
}
