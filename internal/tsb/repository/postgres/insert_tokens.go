package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/jackc/pgx/v5"
)

const tokenColumns = `
	txid,
	input_index,
	token_id,
	amount,
	type_code,
	metadata,
	metadata_json,
	metadata_push,
	protocol_timestamp,
	block_height,
	block_hash,
	block_time,
	is_valid_script`

const insertTokenQuery = `
INSERT INTO tsb_tokens (` + tokenColumns + `
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const insertTokenIgnoreQuery = insertTokenQuery + `
ON CONFLICT (txid) DO NOTHING`

// InsertTokens writes tokens in one pipelined batch. Rows whose txid already exists are counted as duplicates.
// When the batch fails as a whole, tokens are retried one by one so a single bad row does not drop the rest.
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

	rows := make([][]any, 0, len(tokens))
	for _, t := range tokens {
		args, argsErr := tokenArgs(t)
		if argsErr != nil {
			res.Failed++
			continue
		}
		rows = append(rows, args)
	}

	batch := &pgx.Batch{}
	for _, args := range rows {
		batch.Queue(insertTokenIgnoreQuery, args...)
	}

	batchRes, batchErr := r.execBatch(ctx, batch, len(rows))
	if batchErr == nil {
		res.Add(batchRes)
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
		return res, err
	}

	for _, args := range rows {
		tag, execErr := r.pool.Exec(ctx, insertTokenIgnoreQuery, args...)
		switch {
		case execErr != nil:
			res.Failed++
		case tag.RowsAffected() == 0:
			res.Duplicates++
		default:
			res.Inserted++
		}
	}
	if res.Inserted == 0 && res.Duplicates == 0 {
		err = fmt.Errorf("insert tokens: %w", batchErr)
		return res, err
	}
	return res, nil
}

func (r *Repository) execBatch(ctx context.Context, batch *pgx.Batch, n int) (res model.InsertResult, err error) {
	br := r.pool.SendBatch(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close batch: %w", closeErr)
		}
	}()

	for i := 0; i < n; i++ {
		tag, execErr := br.Exec()
		if execErr != nil {
			return model.InsertResult{}, fmt.Errorf("exec batch item %d: %w", i, execErr)
		}
		if tag.RowsAffected() == 0 {
			res.Duplicates++
		} else {
			res.Inserted++
		}
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

	args, err := tokenArgs(t)
	if err != nil {
		return err
	}

	if _, err = r.pool.Exec(ctx, insertTokenQuery, args...); err != nil {
		if isDuplicateKeyError(err) {
			err = model.ErrDuplicateToken
			return err
		}
		err = fmt.Errorf("insert token: %w", err)
		return err
	}
	return nil
}

func tokenArgs(t model.Token) ([]any, error) {
	if t.TxID == "" {
		return nil, errors.New("token txid is required")
	}
	fields, err := t.Metadata.FieldsJSON()
	if err != nil {
		return nil, fmt.Errorf("encode metadata fields: %w", err)
	}
	return []any{
		t.TxID,
		int32(t.InputIndex),
		sanitizeText(t.TokenID),
		numericFromUint64(t.Amount),
		int16(t.TypeCode),
		sanitizeText(t.Metadata.Raw),
		fields,
		t.MetadataPush.String(),
		numericFromUint64(t.Timestamp),
		int64(t.BlockHeight),
		t.BlockHash,
		t.BlockTime.UTC(),
		t.IsValidScript,
	}, nil
}
