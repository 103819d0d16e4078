// Package mongo stores TSB tokens and the scan checkpoint in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	tokensCollection   = "tsb_tokens"
	progressCollection = "tsb_scan_progress"
	progressID         = 1
)

type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

type Repository struct {
	client   *mongo.Client
	tokens   *mongo.Collection
	progress *mongo.Collection
	metrics  Metrics
}

// NewRepository connects to uri, pings the deployment and ensures the token indexes exist.
func NewRepository(ctx context.Context, uri, database string, metrics Metrics) (*Repository, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	r := newRepository(client.Database(database), metrics)
	r.client = client
	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

func newRepository(db *mongo.Database, metrics Metrics) *Repository {
	return &Repository{
		tokens:   db.Collection(tokensCollection),
		progress: db.Collection(progressCollection),
		metrics:  metrics,
	}
}

// EnsureIndexes creates the unique txid index and the recency index used by LatestTokens.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "txid", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("txid_unique"),
		},
		{
			Keys:    bson.D{{Key: "block_height", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("block_height_desc"),
		},
	})
	if err != nil {
		return fmt.Errorf("create token indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}
