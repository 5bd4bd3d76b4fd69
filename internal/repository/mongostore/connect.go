package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type connectConfig struct {
	minPool, maxPool  uint64
	connectTimeout    time.Duration
	selectTimeout     time.Duration
	skipIndexCreation bool
}

type Option func(*connectConfig)

func WithPoolSize(minSize, maxSize uint64) Option {
	return func(c *connectConfig) {
		c.minPool, c.maxPool = minSize, maxSize
	}
}

func WithTimeouts(connect, serverSelection time.Duration) Option {
	return func(c *connectConfig) {
		c.connectTimeout, c.selectTimeout = connect, serverSelection
	}
}

// WithoutIndexes skips CreateIndexes, for read-only or pre-provisioned
// databases.
func WithoutIndexes() Option {
	return func(c *connectConfig) { c.skipIndexCreation = true }
}

func clientOptions(uri string, cfg connectConfig) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetConnectTimeout(cfg.connectTimeout).
		SetServerSelectionTimeout(cfg.selectTimeout).
		SetMaxPoolSize(cfg.maxPool).
		SetMinPoolSize(cfg.minPool)
}

// Connect opens database on the server at uri and returns a ready store with
// its indexes in place. The client is disconnected again if any step fails.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	cfg := connectConfig{
		minPool:        10,
		maxPool:        100,
		connectTimeout: 10 * time.Second,
		selectTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := mongo.Connect(ctx, clientOptions(uri, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := New(client.Database(database))
	if !cfg.skipIndexCreation {
		if err := store.CreateIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
	}
	return store, nil
}
