package bitcoin

import (
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	opBlockCount   = "get_block_count"
	opBlockHash    = "get_block_hash"
	opBlockVerbose = "get_block_verbose_tx"
)

// ObservedClient reports the outcome and latency of every node call it forwards.
type ObservedClient struct {
	client  RPCClient
	metrics RPCMetrics
}

func NewObservedClient(client RPCClient, metrics RPCMetrics) *ObservedClient {
	return &ObservedClient{client: client, metrics: metrics}
}

func (c *ObservedClient) GetBlockCount() (int64, error) {
	return observe(c.metrics, opBlockCount, c.client.GetBlockCount)
}

func (c *ObservedClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	return observe(c.metrics, opBlockHash, func() (*chainhash.Hash, error) {
		return c.client.GetBlockHash(height)
	})
}

// GetBlockVerboseTx returns a block with decoded transactions, witness included.
func (c *ObservedClient) GetBlockVerboseTx(hash *chainhash.Hash) (*btcjson.GetBlockVerboseTxResult, error) {
	return observe(c.metrics, opBlockVerbose, func() (*btcjson.GetBlockVerboseTxResult, error) {
		return c.client.GetBlockVerboseTx(hash)
	})
}

func observe[T any](m RPCMetrics, op string, call func() (T, error)) (T, error) {
	started := time.Now()
	v, err := call()
	m.Observe(op, err, started)
	return v, err
}
