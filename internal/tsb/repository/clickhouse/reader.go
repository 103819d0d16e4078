package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/repository"
)

var _ repository.Reader = (*Repository)(nil)

const selectTokensQuery = `
SELECT
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
FROM tsb_tokens FINAL`

// TokenByTxID returns the token revealed by txid or model.ErrNotFound.
func (r *Repository) TokenByTxID(ctx context.Context, txid string) (token model.Token, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("token_by_txid", err, start)
	}()

	tokens, err := r.queryTokens(ctx, selectTokensQuery+`
WHERE txid = ?
LIMIT 1`, txid)
	if err != nil {
		return model.Token{}, fmt.Errorf("query token %s: %w", txid, err)
	}
	if len(tokens) == 0 {
		return model.Token{}, model.ErrNotFound
	}
	return tokens[0], nil
}

// LatestTokens returns the most recently indexed tokens, highest block first.
func (r *Repository) LatestTokens(ctx context.Context, limit int) (tokens []model.Token, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("latest_tokens", err, start)
	}()

	tokens, err = r.queryTokens(ctx, selectTokensQuery+`
ORDER BY block_height DESC, inserted_at DESC, txid
LIMIT ?`, uint64(repository.NormalizeLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("query latest tokens: %w", err)
	}
	return tokens, nil
}

func (r *Repository) queryTokens(ctx context.Context, query string, args ...any) (tokens []model.Token, err error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(rows driver.Rows) (model.Token, error) {
	var (
		t      model.Token
		fields string
		push   string
	)
	if err := rows.Scan(
		&t.TxID,
		&t.InputIndex,
		&t.TokenID,
		&t.Amount,
		&t.TypeCode,
		&t.Metadata.Raw,
		&fields,
		&push,
		&t.Timestamp,
		&t.BlockHeight,
		&t.BlockHash,
		&t.BlockTime,
		&t.IsValidScript,
	); err != nil {
		return model.Token{}, err
	}

	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &t.Metadata.Fields); err != nil {
			return model.Token{}, fmt.Errorf("metadata fields: %w", err)
		}
	}
	t.MetadataPush = model.ParsePushKind(push)
	t.BlockTime = t.BlockTime.UTC()
	return t, nil
}
