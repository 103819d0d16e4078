package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

const insertTokensQuery = `
INSERT INTO tsb_tokens (
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
	is_valid_script
) VALUES`

const existingTxIDsQuery = `
SELECT txid
FROM tsb_tokens FINAL
WHERE txid IN ?`

// InsertTokens writes tokens whose txid is not stored yet. ReplacingMergeTree only collapses rows on merge,
// so duplicates are filtered before the insert.
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

	unique, dupes := uniqueByTxID(tokens)
	res.Duplicates += dupes

	existing, err := r.existingTxIDs(ctx, txIDs(unique))
	if err != nil {
		res.Failed += len(unique)
		return res, err
	}

	fresh := make([]model.Token, 0, len(unique))
	for _, t := range unique {
		if _, ok := existing[t.TxID]; ok {
			res.Duplicates++
			continue
		}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	if err = r.appendTokens(ctx, fresh); err != nil {
		res.Failed += len(fresh)
		return res, err
	}
	res.Inserted += len(fresh)
	return res, nil
}

// InsertToken writes a single token and returns model.ErrDuplicateToken when the txid is already stored.
func (r *Repository) InsertToken(ctx context.Context, t model.Token) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_token", err, start)
	}()

	existing, err := r.existingTxIDs(ctx, []string{t.TxID})
	if err != nil {
		return err
	}
	if _, ok := existing[t.TxID]; ok {
		err = model.ErrDuplicateToken
		return err
	}

	err = r.appendTokens(ctx, []model.Token{t})
	return err
}

func (r *Repository) appendTokens(ctx context.Context, tokens []model.Token) error {
	batch, err := r.conn.PrepareBatch(ctx, insertTokensQuery)
	if err != nil {
		return fmt.Errorf("prepare tokens batch: %w", err)
	}

	for _, t := range tokens {
		fields, err := t.Metadata.FieldsJSON()
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("encode metadata fields for %s: %w", t.TxID, err)
		}
		if err := batch.Append(
			t.TxID,
			t.InputIndex,
			t.TokenID,
			t.Amount,
			t.TypeCode,
			t.Metadata.Raw,
			string(fields),
			t.MetadataPush.String(),
			t.Timestamp,
			t.BlockHeight,
			t.BlockHash,
			t.BlockTime.UTC(),
			t.IsValidScript,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append token: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert tokens: %w", err)
	}
	return nil
}

func (r *Repository) existingTxIDs(ctx context.Context, txids []string) (existing map[string]struct{}, err error) {
	existing = make(map[string]struct{}, len(txids))
	if len(txids) == 0 {
		return existing, nil
	}

	rows, err := r.conn.Query(ctx, existingTxIDsQuery, txids)
	if err != nil {
		return nil, fmt.Errorf("query existing txids: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var txid string
		if err = rows.Scan(&txid); err != nil {
			return nil, fmt.Errorf("scan txid: %w", err)
		}
		existing[txid] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing txids: %w", err)
	}
	return existing, nil
}

// uniqueByTxID keeps the first token per txid and reports how many were dropped.
func uniqueByTxID(tokens []model.Token) ([]model.Token, int) {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]model.Token, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.TxID]; ok {
			continue
		}
		seen[t.TxID] = struct{}{}
		out = append(out, t)
	}
	return out, len(tokens) - len(out)
}

func txIDs(tokens []model.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.TxID)
	}
	return out
}
