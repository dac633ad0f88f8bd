package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

const pingTimeout = 5 * time.Second

// Client owns the connection pool behind the link denylist and the readiness probe.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// Options translates the settings into go-redis options. A redis:// or rediss:// URL
// replaces the discrete address fields; tls_enabled still forces TLS on top of it.
func Options(cfg config.RedisSettings) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// NewClient opens the pool and fails fast when Redis is unreachable.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{client: redis.NewClient(opts), logger: logger}
	if err := c.HealthCheck(ctx); err != nil {
		_ = c.client.Close()
		return nil, err
	}

	logger.Info("redis connection established",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Bool("tls_enabled", opts.TLSConfig != nil),
	)

	return c, nil
}

// Client returns the underlying redis.Client for repositories.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck pings Redis with a bounded timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
