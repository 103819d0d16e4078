// Package chain defines the block data contract shared by chain sources and the scanner.
package chain

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks an upstream refusal caused by request rate limits.
var ErrRateLimited = errors.New("rate limited by upstream")

// IsRateLimited reports whether err carries ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Source provides block data for scanning.
type Source interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (string, error)
	Block(ctx context.Context, hash string) (*Block, error)
}

// Block is a block with the input witness data needed to find tokens.
type Block struct {
	Hash         string
	Height       uint64
	Time         time.Time
	Transactions []Transaction
}

// Transaction lists the inputs of a single transaction.
type Transaction struct {
	TxID   string
	Inputs []Input
}

// Input is a transaction input with its decoded witness stack.
type Input struct {
	Coinbase bool
	PrevTxID string
	PrevVout uint32
	Witness  [][]byte
}
