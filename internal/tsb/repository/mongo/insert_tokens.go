package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// InsertTokens writes tokens with an unordered InsertMany. Duplicate key write errors are counted, not returned.
func (r *Repository) InsertTokens(ctx context.Context, tokens []model.Token) (model.InsertResult, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_tokens", err, start)
	}()

	var res model.InsertResult
	if len(tokens) == 0 {
		return res, nil
	}

	docs := make([]any, 0, len(tokens))
	for _, t := range tokens {
		doc, docErr := newTokenDocument(t, start)
		if docErr != nil {
			res.Failed++
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		err = errors.New("no valid tokens to insert")
		return res, err
	}

	_, insertErr := r.tokens.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if insertErr == nil {
		res.Inserted += len(docs)
		return res, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(insertErr, &bwe) || bwe.WriteConcernError != nil {
		res.Failed += len(docs)
		err = fmt.Errorf("insert tokens: %w", insertErr)
		return res, err
	}

	for _, we := range bwe.WriteErrors {
		if isDuplicateKeyCode(we.Code) {
			res.Duplicates++
			continue
		}
		res.Failed++
	}
	res.Inserted += len(docs) - len(bwe.WriteErrors)

	if res.Inserted == 0 && res.Duplicates == 0 {
		err = fmt.Errorf("insert tokens: %w", insertErr)
		return res, err
	}
	return res, nil
}

// InsertToken writes a single token and returns model.ErrDuplicateToken when the txid is already stored.
func (r *Repository) InsertToken(ctx context.Context, t model.Token) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_token", err, start)
	}()

	doc, err := newTokenDocument(t, start)
	if err != nil {
		return err
	}

	if _, err = r.tokens.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = model.ErrDuplicateToken
			return err
		}
		err = fmt.Errorf("insert token %s: %w", t.TxID, err)
		return err
	}
	return nil
}

// isDuplicateKeyCode mirrors the codes matched by mongo.IsDuplicateKeyError for a single write error.
func isDuplicateKeyCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}
