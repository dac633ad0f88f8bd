package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

const defaultTimeout = 10 * time.Second

// Client owns the MongoDB connection used when store.driver is mongo.
type Client struct {
	client  *mongo.Client
	db      *mongo.Database
	cfg     config.MongoSettings
	logger  *zap.Logger
	timeout time.Duration
}

// NewClient connects, pings the primary and ensures the users collection indexes.
func NewClient(ctx context.Context, cfg config.MongoSettings, logger *zap.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	c := &Client{
		client:  client,
		db:      client.Database(cfg.Database),
		cfg:     cfg,
		logger:  logger,
		timeout: timeout,
	}

	if err := c.HealthCheck(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if err := c.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to mongo",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)

	return c, nil
}

// Users returns the collection holding user documents.
func (c *Client) Users() *mongo.Collection {
	return c.db.Collection(c.cfg.Collection)
}

// HealthCheck pings the primary with the configured timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	return nil
}

// Close disconnects from the deployment.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing mongo connection")
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.Users().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "googleId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "facebookId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}
