package logger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// Option adjusts the logger built by New.
type Option func(*zap.Config)

// WithLevel overrides the environment default level ("debug", "info", "warn", "error").
// An unknown level is reported by New.
func WithLevel(level string) Option {
	return func(cfg *zap.Config) {
		if level == "" {
			return
		}
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InvalidLevel)
			return
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
}

// WithFields stamps every entry with fields such as the service name.
func WithFields(fields map[string]any) Option {
	return func(cfg *zap.Config) {
		if cfg.InitialFields == nil {
			cfg.InitialFields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			cfg.InitialFields[k] = v
		}
	}
}

// New returns the process logger: JSON in production, colored console elsewhere.
// Only the first call builds; later calls return the same instance.
func New(env string, opts ...Option) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		lg, err = build(env, opts...)
	})

	return lg, err
}

func build(env string, opts ...Option) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env != "production" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Level.Level() == zapcore.InvalidLevel {
		return nil, fmt.Errorf("invalid log level")
	}
	return cfg.Build()
}

// L returns the process logger, falling back to a no-op logger before New runs.
func L() *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}
	return lg
}

// WithContext attaches request scoped fields (request id, authenticated user) to the logger.
func WithContext(ctx context.Context) *zap.Logger {
	base := L()
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 2)
	if id := stringFromContext(ctx, RequestIDKey{}); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if uid := stringFromContext(ctx, UserIDKey{}); uid != "" {
		fields = append(fields, zap.String("user_id", uid))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func stringFromContext(ctx context.Context, key any) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// UserIDKey is used to store the authenticated user id on the context.
type UserIDKey struct{}

var (
	emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)
	phoneRegex = regexp.MustCompile(`^(\+?\d{1,3})(\d{4,})(\d{4})$`)
)

// MaskEmail masks email addresses, showing first 3 characters and domain
// Example: john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	matches := emailRegex.FindStringSubmatch(email)
	if len(matches) == 3 {
		return matches[1] + "***" + matches[2]
	}

	// Fallback: just mask everything before @
	parts := strings.SplitN(email, "@", 2)
	if len(parts) == 2 {
		return "***@" + parts[1]
	}

	return "***"
}

// MaskPhone masks phone numbers, showing country code and last 4 digits
// Example: +1234567890 -> +123***7890
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	matches := phoneRegex.FindStringSubmatch(phone)
	if len(matches) == 4 {
		return matches[1] + "***" + matches[3]
	}

	// Fallback: show last 4 digits only
	if len(phone) > 4 {
		return "***" + phone[len(phone)-4:]
	}

	return "***"
}

// MaskIP performs partial IP masking, showing first 2 octets for IPv4
// Example: 192.168.1.100 -> 192.168.*.*
// For IPv6, shows first 4 groups
// Example: 2001:0db8:85a3:0000:0000:8a2e:0370:7334 -> 2001:0db8:85a3:0000:*:*:*:*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	// IPv4 masking
	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	// IPv6 masking
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}

// MaskToken reduces a bearer token to a short prefix safe for logs.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return MaskString(token)
	}
	return token[:8] + "***"
}

// MaskString generic masking for arbitrary sensitive strings
// Shows first and last 2 characters with *** in between
// Example: "secret123" -> "se***23"
func MaskString(s string) string {
	if s == "" {
		return ""
	}

	length := len(s)
	if length <= 4 {
		return "***"
	}

	return s[:2] + "***" + s[length-2:]
}
