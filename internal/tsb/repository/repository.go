// Package repository defines the read side shared by the token store adapters.
package repository

import (
	"context"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// DefaultLatestLimit bounds LatestTokens when callers pass a non-positive limit.
const DefaultLatestLimit = 20

// Reader exposes read-only token queries.
type Reader interface {
	TokenByTxID(ctx context.Context, txid string) (model.Token, error)
	LatestTokens(ctx context.Context, limit int) ([]model.Token, error)
	Progress(ctx context.Context) (model.Progress, bool, error)
}

// NormalizeLimit applies DefaultLatestLimit and an upper bound of 1000.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLatestLimit
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
