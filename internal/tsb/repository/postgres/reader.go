package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ repository.Reader = (*Repository)(nil)

const selectTokensQuery = `
SELECT` + tokenColumns + `
FROM tsb_tokens`

// TokenByTxID returns the token revealed by txid or model.ErrNotFound.
func (r *Repository) TokenByTxID(ctx context.Context, txid string) (model.Token, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("token_by_txid", err, start)
	}()

	token, err := scanToken(r.pool.QueryRow(ctx, selectTokensQuery+`
WHERE txid = $1`, txid))
	if err != nil {
		if isNotFoundError(err) {
			err = model.ErrNotFound
			return model.Token{}, err
		}
		err = fmt.Errorf("query token %s: %w", txid, err)
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

	rows, err := r.pool.Query(ctx, selectTokensQuery+`
ORDER BY block_height DESC, id DESC
LIMIT $1`, repository.NormalizeLimit(limit))
	if err != nil {
		err = fmt.Errorf("query latest tokens: %w", err)
		return nil, err
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		token, scanErr := scanToken(rows)
		if scanErr != nil {
			err = fmt.Errorf("scan token: %w", scanErr)
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterate latest tokens: %w", err)
		return nil, err
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (model.Token, error) {
	var (
		t          model.Token
		inputIndex int32
		amount     pgtype.Numeric
		typeCode   int16
		fields     []byte
		push       string
		timestamp  pgtype.Numeric
		height     int64
	)
	if err := row.Scan(
		&t.TxID,
		&inputIndex,
		&t.TokenID,
		&amount,
		&typeCode,
		&t.Metadata.Raw,
		&fields,
		&push,
		&timestamp,
		&height,
		&t.BlockHash,
		&t.BlockTime,
		&t.IsValidScript,
	); err != nil {
		return model.Token{}, err
	}

	var err error
	if t.Amount, err = uint64FromNumeric(amount); err != nil {
		return model.Token{}, fmt.Errorf("amount: %w", err)
	}
	if t.Timestamp, err = uint64FromNumeric(timestamp); err != nil {
		return model.Token{}, fmt.Errorf("timestamp: %w", err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &t.Metadata.Fields); err != nil {
			return model.Token{}, fmt.Errorf("metadata fields: %w", err)
		}
	}

	t.InputIndex = uint32(inputIndex)
	t.TypeCode = uint8(typeCode)
	t.MetadataPush = model.ParsePushKind(push)
	t.BlockHeight = uint64(height)
	t.BlockTime = t.BlockTime.UTC()
	return t, nil
}
