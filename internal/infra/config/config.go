package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AUTH"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Store     StoreSettings     `mapstructure:"store"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Mongo     MongoSettings     `mapstructure:"mongo"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Secrets   SecretSettings    `mapstructure:"secrets"`
	Token     TokenSettings     `mapstructure:"token"`
	Session   SessionSettings   `mapstructure:"session"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	OTP       OTPSettings       `mapstructure:"otp"`
	Mail      MailSettings      `mapstructure:"mail"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name        string `mapstructure:"name"`
	Env         string `mapstructure:"env"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	BaseURL     string `mapstructure:"base_url"`
	FrontendURL string `mapstructure:"frontend_url"`
	LogLevel    string `mapstructure:"log_level"`
}

// StoreSettings selects the user document backend.
type StoreSettings struct {
	Driver             string `mapstructure:"driver"`
	MaxConflictRetries int    `mapstructure:"max_conflict_retries"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// MongoSettings configures the document store used when store.driver is mongo.
type MongoSettings struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisSettings configures Redis connection and TLS. URL, when set, takes
// precedence over host, port, db and password.
type RedisSettings struct {
	URL        string `mapstructure:"url"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	PoolSize   int    `mapstructure:"pool_size"`
	LinkPrefix string `mapstructure:"link_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// SecretSettings holds HMAC keys for session and link tokens.
type SecretSettings struct {
	SessionKey      string `mapstructure:"session_key"`
	VerificationKey string `mapstructure:"verification_key"`
	ResetKey        string `mapstructure:"reset_key"`
}

type TokenSettings struct {
	Issuer          string        `mapstructure:"issuer"`
	TTL             time.Duration `mapstructure:"ttl"`
	VerificationTTL time.Duration `mapstructure:"verification_ttl"`
	ResetTTL        time.Duration `mapstructure:"reset_ttl"`
}

type SessionSettings struct {
	TTL              time.Duration `mapstructure:"ttl"`
	InactivityWindow time.Duration `mapstructure:"inactivity_window"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"`
}

// LockoutSettings controls password lockout. DisplayLimit is only used in the
// "(n/limit attempts)" message.
type LockoutSettings struct {
	Threshold    int           `mapstructure:"threshold"`
	Duration     time.Duration `mapstructure:"duration"`
	DisplayLimit int           `mapstructure:"display_limit"`
}

type OTPSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MailSettings configures outbound mail. Driver "log" only logs messages.
type MailSettings struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// TelemetrySettings configures metrics and tracing. Tracing is off while OTLPEndpoint is empty.
type TelemetrySettings struct {
	MetricsNamespace string  `mapstructure:"metrics_namespace"`
	ServiceName      string  `mapstructure:"service_name"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure     bool    `mapstructure:"otlp_insecure"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.base_url",
	"app.frontend_url",
	"app.log_level",
	"store.driver",
	"store.max_conflict_retries",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.schema",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"mongo.uri",
	"mongo.database",
	"mongo.collection",
	"mongo.timeout",
	"redis.url",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.pool_size",
	"redis.link_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"secrets.session_key",
	"secrets.verification_key",
	"secrets.reset_key",
	"token.issuer",
	"token.ttl",
	"token.verification_ttl",
	"token.reset_ttl",
	"session.ttl",
	"session.inactivity_window",
	"session.sweep_schedule",
	"lockout.threshold",
	"lockout.duration",
	"lockout.display_limit",
	"otp.enabled",
	"otp.ttl",
	"mail.driver",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"telemetry.metrics_namespace",
	"telemetry.service_name",
	"telemetry.otlp_endpoint",
	"telemetry.otlp_insecure",
	"telemetry.sampling_rate",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	env := strings.ToLower(strings.TrimSpace(c.App.Env))
	return env == "" || env == "development" || env == "dev" || env == "test"
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if !c.IsDevelopment() {
		if c.Secrets.SessionKey == "" {
			errs = append(errs, errors.New("secrets.session_key is required"))
		}
		if c.Secrets.VerificationKey == "" {
			errs = append(errs, errors.New("secrets.verification_key is required"))
		}
		if c.Secrets.ResetKey == "" {
			errs = append(errs, errors.New("secrets.reset_key is required"))
		}
	}

	switch c.Store.Driver {
	case "postgres", "mongo":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be postgres or mongo", c.Store.Driver))
	}

	switch c.Mail.Driver {
	case "smtp", "log":
	default:
		errs = append(errs, fmt.Errorf("mail.driver %q must be smtp or log", c.Mail.Driver))
	}

	windows := []struct {
		key   string
		value time.Duration
	}{
		{"token.ttl", c.Token.TTL},
		{"token.verification_ttl", c.Token.VerificationTTL},
		{"token.reset_ttl", c.Token.ResetTTL},
		{"session.ttl", c.Session.TTL},
		{"session.inactivity_window", c.Session.InactivityWindow},
		{"lockout.duration", c.Lockout.Duration},
		{"otp.ttl", c.OTP.TTL},
	}
	for _, w := range windows {
		if w.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", w.key))
		}
	}

	if c.Lockout.Threshold <= 0 {
		errs = append(errs, errors.New("lockout.threshold must be positive"))
	}
	if c.Store.MaxConflictRetries <= 0 {
		errs = append(errs, errors.New("store.max_conflict_retries must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "userauth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8000)
	v.SetDefault("app.base_url", "http://localhost:8000")
	v.SetDefault("app.frontend_url", "http://localhost:3000")
	v.SetDefault("app.log_level", "")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conflict_retries", 3)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.schema", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "userauth")
	v.SetDefault("mongo.collection", "users")
	v.SetDefault("mongo.timeout", "10s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.link_prefix", "auth:link_used")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("secrets.session_key", "")
	v.SetDefault("secrets.verification_key", "")
	v.SetDefault("secrets.reset_key", "")

	v.SetDefault("token.issuer", "userauth-service")
	v.SetDefault("token.ttl", "48h")
	v.SetDefault("token.verification_ttl", "10m")
	v.SetDefault("token.reset_ttl", "5m")

	v.SetDefault("session.ttl", "48h")
	v.SetDefault("session.inactivity_window", "5m")
	v.SetDefault("session.sweep_schedule", "")

	v.SetDefault("lockout.threshold", 4)
	v.SetDefault("lockout.duration", "15m")
	v.SetDefault("lockout.display_limit", 5)

	v.SetDefault("otp.enabled", true)
	v.SetDefault("otp.ttl", "5m")

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@localhost")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.metrics_namespace", "auth")
	v.SetDefault("telemetry.service_name", "userauth-service")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
