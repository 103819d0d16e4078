// Package bitcoin implements chain.Source on top of a Bitcoin Core JSON-RPC node.
package bitcoin

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/pkg/safe"
)

// Source reads blocks from a Bitcoin Core node.
type Source struct {
	rpc     RPCClient
	network model.Network
	params  *chaincfg.Params
}

// NewSource creates a Source for the given network.
func NewSource(rpc RPCClient, network model.Network) (*Source, error) {
	params, err := ChainParams(network)
	if err != nil {
		return nil, err
	}
	return &Source{
		rpc:     rpc,
		network: network,
		params:  params,
	}, nil
}

// ChainParams maps a network to btcd chain parameters.
func ChainParams(network model.Network) (*chaincfg.Params, error) {
	switch network {
	case model.Mainnet:
		return &chaincfg.MainNetParams, nil
	case model.Testnet:
		return &chaincfg.TestNet3Params, nil
	case model.Regtest:
		return &chaincfg.RegressionNetParams, nil
	case model.Signet:
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}

// CheckNetwork verifies that the node serves the configured network by comparing genesis hashes.
func (s *Source) CheckNetwork(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	genesis, err := s.rpc.GetBlockHash(0)
	if err != nil {
		return fmt.Errorf("get genesis hash: %w", classify(err))
	}
	if !genesis.IsEqual(s.params.GenesisHash) {
		return fmt.Errorf("node genesis %s does not match %s genesis %s", genesis, s.network, s.params.GenesisHash)
	}
	return nil
}

// CurrentHeight returns the height of the node's best chain.
func (s *Source) CurrentHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := s.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("get block count: %w", classify(err))
	}
	height, err := safe.Uint64(count)
	if err != nil {
		return 0, fmt.Errorf("block count overflow: %w", err)
	}
	return height, nil
}

// BlockHash returns the hash of the block at height.
func (s *Source) BlockHash(ctx context.Context, height uint64) (string, error) {
	h, err := safe.Int64(height)
	if err != nil {
		return "", fmt.Errorf("block height for rpc: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, err := s.rpc.GetBlockHash(h)
	if err != nil {
		return "", fmt.Errorf("get block hash at height %d: %w", height, classify(err))
	}
	return hash.String(), nil
}

// Block fetches a block with every transaction's inputs and witness stacks.
func (s *Source) Block(ctx context.Context, hash string) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := chainhash.NewHashFromStr(hash)
	if err != nil {
		return nil, fmt.Errorf("parse block hash %q: %w", hash, err)
	}
	src, err := s.rpc.GetBlockVerboseTx(h)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, classify(err))
	}

	height, err := safe.Uint64(src.Height)
	if err != nil {
		return nil, fmt.Errorf("block %s height overflow: %w", hash, err)
	}

	block := &chain.Block{
		Hash:         src.Hash,
		Height:       height,
		Time:         time.Unix(src.Time, 0).UTC(),
		Transactions: make([]chain.Transaction, 0, len(src.Tx)),
	}

	for _, tx := range src.Tx {
		inputs := make([]chain.Input, 0, len(tx.Vin))
		for i, vin := range tx.Vin {
			if vin.IsCoinBase() {
				inputs = append(inputs, chain.Input{Coinbase: true})
				continue
			}
			witness, err := decodeWitness(vin.Witness)
			if err != nil {
				return nil, fmt.Errorf("tx %s input %d: %w", tx.Txid, i, err)
			}
			inputs = append(inputs, chain.Input{
				PrevTxID: vin.Txid,
				PrevVout: vin.Vout,
				Witness:  witness,
			})
		}
		block.Transactions = append(block.Transactions, chain.Transaction{
			TxID:   tx.Txid,
			Inputs: inputs,
		})
	}

	return block, nil
}

func decodeWitness(items []string) ([][]byte, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, len(items))
	for i, item := range items {
		b, err := hex.DecodeString(item)
		if err != nil {
			return nil, fmt.Errorf("decode witness item %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// classify marks HTTP 429 responses surfaced by rpcclient in post mode.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests") {
		return fmt.Errorf("%w: %w", chain.ErrRateLimited, err)
	}
	return err
}
