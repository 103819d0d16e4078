package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/repository"
)

var _ repository.Reader = (*Repository)(nil)

// TokenByTxID returns the token revealed by txid or model.ErrNotFound.
func (r *Repository) TokenByTxID(ctx context.Context, txid string) (model.Token, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("token_by_txid", err, start)
	}()

	var doc tokenDocument
	if err = r.tokens.FindOne(ctx, bson.D{{Key: "txid", Value: txid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = model.ErrNotFound
			return model.Token{}, err
		}
		err = fmt.Errorf("find token %s: %w", txid, err)
		return model.Token{}, err
	}

	token, err := doc.token()
	if err != nil {
		return model.Token{}, err
	}
	return token, nil
}

// LatestTokens returns the most recently indexed tokens, highest block first.
func (r *Repository) LatestTokens(ctx context.Context, limit int) ([]model.Token, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("latest_tokens", err, start)
	}()

	opts := options.Find().
		SetSort(bson.D{{Key: "block_height", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(repository.NormalizeLimit(limit)))

	cursor, err := r.tokens.Find(ctx, bson.D{}, opts)
	if err != nil {
		err = fmt.Errorf("find latest tokens: %w", err)
		return nil, err
	}

	var docs []tokenDocument
	if err = cursor.All(ctx, &docs); err != nil {
		err = fmt.Errorf("decode latest tokens: %w", err)
		return nil, err
	}

	tokens := make([]model.Token, 0, len(docs))
	for _, doc := range docs {
		t, convErr := doc.token()
		if convErr != nil {
			err = fmt.Errorf("token %s: %w", doc.TxID, convErr)
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}
