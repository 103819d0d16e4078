// Package esplora implements chain.Source over the Esplora REST API served by mempool.space and blockstream.info.
package esplora

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"go.uber.org/ratelimit"
)

// pageSize is the fixed number of transactions Esplora returns per /txs page.
const pageSize = 25

type (
	// Metrics records request outcomes.
	Metrics interface {
		Observe(endpoint string, err error, started time.Time)
	}

	// Option customises a Source.
	Option func(*Source)
)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		s.http = c
	}
}

// WithRateLimit paces outgoing requests to rps per second. Zero disables pacing.
func WithRateLimit(rps int) Option {
	return func(s *Source) {
		if rps <= 0 {
			s.limiter = ratelimit.NewUnlimited()
			return
		}
		s.limiter = ratelimit.New(rps)
	}
}

// Source reads blocks from an Esplora-compatible REST API.
type Source struct {
	baseURL string
	http    *http.Client
	limiter ratelimit.Limiter
	metrics Metrics
}

// NewSource creates a Source rooted at baseURL, e.g. https://mempool.space/testnet/api.
func NewSource(baseURL string, metrics Metrics, opts ...Option) (*Source, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("esplora base url is required")
	}
	s := &Source{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: ratelimit.New(5),
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type blockInfo struct {
	ID        string `json:"id"`
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	TxCount   int    `json:"tx_count"`
}

type txInfo struct {
	TxID string    `json:"txid"`
	Vin  []vinInfo `json:"vin"`
}

type vinInfo struct {
	TxID       string   `json:"txid"`
	Vout       uint32   `json:"vout"`
	IsCoinbase bool     `json:"is_coinbase"`
	Witness    []string `json:"witness"`
}

// CurrentHeight returns the tip height.
func (s *Source) CurrentHeight(ctx context.Context) (uint64, error) {
	body, err := s.get(ctx, "tip_height", "/blocks/tip/height")
	if err != nil {
		return 0, fmt.Errorf("get tip height: %w", err)
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tip height: %w", err)
	}
	return height, nil
}

// BlockHash returns the hash of the block at height.
func (s *Source) BlockHash(ctx context.Context, height uint64) (string, error) {
	body, err := s.get(ctx, "block_height", "/block-height/"+strconv.FormatUint(height, 10))
	if err != nil {
		return "", fmt.Errorf("get block hash at height %d: %w", height, err)
	}
	hash := strings.TrimSpace(string(body))
	if _, err := hex.DecodeString(hash); err != nil || len(hash) != 64 {
		return "", fmt.Errorf("unexpected block hash %q at height %d", hash, height)
	}
	return hash, nil
}

// Block fetches block header data and pages through all of its transactions.
func (s *Source) Block(ctx context.Context, hash string) (*chain.Block, error) {
	var info blockInfo
	if err := s.getJSON(ctx, "block", "/block/"+hash, &info); err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}

	block := &chain.Block{
		Hash:         info.ID,
		Height:       info.Height,
		Time:         time.Unix(info.Timestamp, 0).UTC(),
		Transactions: make([]chain.Transaction, 0, info.TxCount),
	}

	for start := 0; start < info.TxCount; start += pageSize {
		var page []txInfo
		path := fmt.Sprintf("/block/%s/txs/%d", hash, start)
		if err := s.getJSON(ctx, "block_txs", path, &page); err != nil {
			return nil, fmt.Errorf("get block %s txs from %d: %w", hash, start, err)
		}
		if len(page) == 0 {
			break
		}
		for _, tx := range page {
			converted, err := convertTx(tx)
			if err != nil {
				return nil, err
			}
			block.Transactions = append(block.Transactions, converted)
		}
	}

	return block, nil
}

func convertTx(tx txInfo) (chain.Transaction, error) {
	inputs := make([]chain.Input, 0, len(tx.Vin))
	for i, vin := range tx.Vin {
		if vin.IsCoinbase {
			inputs = append(inputs, chain.Input{Coinbase: true})
			continue
		}
		var witness [][]byte
		for j, item := range vin.Witness {
			b, err := hex.DecodeString(item)
			if err != nil {
				return chain.Transaction{}, fmt.Errorf("tx %s input %d witness item %d: %w", tx.TxID, i, j, err)
			}
			witness = append(witness, b)
		}
		inputs = append(inputs, chain.Input{
			PrevTxID: vin.TxID,
			PrevVout: vin.Vout,
			Witness:  witness,
		})
	}
	return chain.Transaction{TxID: tx.TxID, Inputs: inputs}, nil
}

func (s *Source) getJSON(ctx context.Context, endpoint, path string, dst any) error {
	body, err := s.get(ctx, endpoint, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (s *Source) get(ctx context.Context, endpoint, path string) (body []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.limiter.Take()

	started := time.Now()
	defer func() {
		s.metrics.Observe(endpoint, err, started)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: GET %s", chain.ErrRateLimited, path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
