package mongo

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// tokenDocument stores uint64 counters as Decimal128, BSON integers are signed.
type tokenDocument struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	TxID              string               `bson:"txid"`
	InputIndex        uint32               `bson:"input_index"`
	TokenID           string               `bson:"token_id"`
	Amount            primitive.Decimal128 `bson:"amount"`
	TypeCode          uint8                `bson:"type_code"`
	Metadata          string               `bson:"metadata"`
	MetadataJSON      string               `bson:"metadata_json,omitempty"`
	MetadataPush      string               `bson:"metadata_push"`
	ProtocolTimestamp primitive.Decimal128 `bson:"protocol_timestamp"`
	BlockHeight       int64                `bson:"block_height"`
	BlockHash         string               `bson:"block_hash"`
	BlockTime         time.Time            `bson:"block_time"`
	IsValidScript     bool                 `bson:"is_valid_script"`
	InsertedAt        time.Time            `bson:"inserted_at"`
}

type progressDocument struct {
	ID                int       `bson:"_id"`
	LastScannedHeight int64     `bson:"last_scanned_height"`
	LastScannedHash   string    `bson:"last_scanned_hash,omitempty"`
	LastScanTimestamp time.Time `bson:"last_scan_timestamp"`
}

func newTokenDocument(t model.Token, now time.Time) (tokenDocument, error) {
	if t.TxID == "" {
		return tokenDocument{}, fmt.Errorf("token %s has no txid", t.TokenID)
	}
	fields, err := t.Metadata.FieldsJSON()
	if err != nil {
		return tokenDocument{}, fmt.Errorf("encode metadata fields for %s: %w", t.TxID, err)
	}
	amount, err := decimalFromUint64(t.Amount)
	if err != nil {
		return tokenDocument{}, err
	}
	timestamp, err := decimalFromUint64(t.Timestamp)
	if err != nil {
		return tokenDocument{}, err
	}
	return tokenDocument{
		TxID:              t.TxID,
		InputIndex:        t.InputIndex,
		TokenID:           t.TokenID,
		Amount:            amount,
		TypeCode:          t.TypeCode,
		Metadata:          t.Metadata.Raw,
		MetadataJSON:      string(fields),
		MetadataPush:      t.MetadataPush.String(),
		ProtocolTimestamp: timestamp,
		BlockHeight:       int64(t.BlockHeight),
		BlockHash:         t.BlockHash,
		BlockTime:         t.BlockTime.UTC(),
		IsValidScript:     t.IsValidScript,
		InsertedAt:        now.UTC(),
	}, nil
}

func (d tokenDocument) token() (model.Token, error) {
	amount, err := uint64FromDecimal(d.Amount)
	if err != nil {
		return model.Token{}, fmt.Errorf("amount: %w", err)
	}
	timestamp, err := uint64FromDecimal(d.ProtocolTimestamp)
	if err != nil {
		return model.Token{}, fmt.Errorf("timestamp: %w", err)
	}
	t := model.Token{
		TokenID:       d.TokenID,
		Amount:        amount,
		TypeCode:      d.TypeCode,
		Metadata:      model.Metadata{Raw: d.Metadata},
		MetadataPush:  model.ParsePushKind(d.MetadataPush),
		Timestamp:     timestamp,
		TxID:          d.TxID,
		InputIndex:    d.InputIndex,
		BlockHeight:   uint64(d.BlockHeight),
		BlockHash:     d.BlockHash,
		BlockTime:     d.BlockTime.UTC(),
		IsValidScript: d.IsValidScript,
	}
	if d.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(d.MetadataJSON), &t.Metadata.Fields); err != nil {
			return model.Token{}, fmt.Errorf("metadata fields: %w", err)
		}
	}
	return t, nil
}

func decimalFromUint64(v uint64) (primitive.Decimal128, error) {
	d, ok := primitive.ParseDecimal128FromBigInt(new(big.Int).SetUint64(v), 0)
	if !ok {
		return primitive.Decimal128{}, fmt.Errorf("%d does not fit decimal128", v)
	}
	return d, nil
}

func uint64FromDecimal(d primitive.Decimal128) (uint64, error) {
	v, exp, err := d.BigInt()
	if err != nil {
		return 0, err
	}
	for ; exp > 0; exp-- {
		v.Mul(v, big.NewInt(10))
	}
	for ; exp < 0; exp++ {
		var rem big.Int
		v.QuoRem(v, big.NewInt(10), &rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("%s is not an integer", d.String())
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s out of uint64 range", d.String())
	}
	return v.Uint64(), nil
}
