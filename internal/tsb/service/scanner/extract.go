package scanner

import (
	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/codec"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// ExtractTokens runs the codec over every witness item of every non-coinbase input in block.
// A token id is reported once per transaction even if several witness items carry it.
func ExtractTokens(block *chain.Block, logger *zap.Logger) []model.Token {
	var tokens []model.Token
	for _, tx := range block.Transactions {
		seen := make(map[string]struct{})
		for idx, in := range tx.Inputs {
			if in.Coinbase {
				continue
			}
			for _, item := range in.Witness {
				res, ok := codec.Decode(item)
				if !ok {
					continue
				}
				if res.Trailing > 0 {
					logger.Warn("token script has trailing bytes",
						zap.String("txid", tx.TxID),
						zap.Int("input", idx),
						zap.Int("trailing", res.Trailing),
					)
				}
				if _, dup := seen[res.Token.TokenID]; dup {
					continue
				}
				seen[res.Token.TokenID] = struct{}{}
				tokens = append(tokens, withProvenance(res.Token, block, tx.TxID, idx))
			}
		}
	}
	return tokens
}

func withProvenance(t model.Token, block *chain.Block, txid string, input int) model.Token {
	t.TxID = txid
	t.InputIndex = uint32(input)
	t.BlockHeight = block.Height
	t.BlockHash = block.Hash
	t.BlockTime = block.Time.UTC()
	if t.Timestamp == 0 && block.Time.Unix() > 0 {
		t.Timestamp = uint64(block.Time.Unix())
	}
	return t
}
