package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 2
	// DefaultPasswordSymbols is the special character set the sign-up form advertises.
	DefaultPasswordSymbols = "@$!%*?&"
)

// PasswordViolation is the first rule a candidate password failed.
type PasswordViolation struct {
	Code    string
	Message string
}

func (e *PasswordViolation) Error() string {
	return e.Message
}

type passwordRule func(password string, userInputs []string) *PasswordViolation

// PasswordPolicy implements port.PasswordPolicyValidator.
type PasswordPolicy struct {
	rules []passwordRule
}

// PasswordPolicyOption tunes NewPasswordPolicy.
type PasswordPolicyOption func(*passwordPolicyConfig)

type passwordPolicyConfig struct {
	minLength int
	minScore  int
	symbols   string
}

// WithMinLength overrides the minimum rune count.
func WithMinLength(n int) PasswordPolicyOption {
	return func(c *passwordPolicyConfig) { c.minLength = n }
}

// WithMinStrength overrides the minimum zxcvbn score (0-4). Zero disables the check.
func WithMinStrength(score int) PasswordPolicyOption {
	return func(c *passwordPolicyConfig) { c.minScore = score }
}

// WithSymbols overrides the set of characters that satisfy the special character rule.
func WithSymbols(symbols string) PasswordPolicyOption {
	return func(c *passwordPolicyConfig) { c.symbols = symbols }
}

// NewPasswordPolicy requires a minimum length, an upper and lower case letter, a digit,
// a special character and a zxcvbn score that accounts for the account's own details.
func NewPasswordPolicy(opts ...PasswordPolicyOption) *PasswordPolicy {
	cfg := passwordPolicyConfig{
		minLength: defaultMinPasswordLength,
		minScore:  defaultMinZxcvbnScore,
		symbols:   DefaultPasswordSymbols,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minScore > 4 {
		cfg.minScore = 4
	}

	return &PasswordPolicy{rules: []passwordRule{
		minLength(cfg.minLength),
		requireRune("uppercase", "password must include an uppercase letter", unicode.IsUpper),
		requireRune("lowercase", "password must include a lowercase letter", unicode.IsLower),
		requireRune("digit", "password must include a number", unicode.IsDigit),
		requireRune("symbol", fmt.Sprintf("password must include one of %s", cfg.symbols), func(r rune) bool {
			return strings.ContainsRune(cfg.symbols, r)
		}),
		strength(cfg.minScore),
	}}
}

// Validate returns the first violated rule. userInputs (email, names, phone)
// lower the strength score of passwords derived from them.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil || len(p.rules) == 0 {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		if trimmed := strings.TrimSpace(in); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	for _, rule := range p.rules {
		if violation := rule(password, inputs); violation != nil {
			return violation
		}
	}
	return nil
}

func minLength(n int) passwordRule {
	return func(password string, _ []string) *PasswordViolation {
		if len([]rune(password)) >= n {
			return nil
		}
		return &PasswordViolation{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", n),
		}
	}
}

func requireRune(code, message string, match func(rune) bool) passwordRule {
	return func(password string, _ []string) *PasswordViolation {
		if strings.IndexFunc(password, match) >= 0 {
			return nil
		}
		return &PasswordViolation{Code: code, Message: message}
	}
}

func strength(minScore int) passwordRule {
	return func(password string, inputs []string) *PasswordViolation {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, inputs).Score >= minScore {
			return nil
		}
		return &PasswordViolation{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
}
