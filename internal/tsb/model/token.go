// Package model defines domain models for TSB token indexing.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by read queries when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateToken is returned when a token with the same txid is already stored.
	ErrDuplicateToken = errors.New("duplicate token")
)

// PushKind identifies the push opcode band that carried the metadata.
type PushKind uint8

const (
	PushDirect PushKind = iota + 1
	PushData1
	PushData2
	PushData4
)

func (k PushKind) String() string {
	switch k {
	case PushDirect:
		return "direct"
	case PushData1:
		return "pushdata1"
	case PushData2:
		return "pushdata2"
	case PushData4:
		return "pushdata4"
	default:
		return "unknown"
	}
}

// ParsePushKind is the inverse of PushKind.String. Unknown names map to zero.
func ParsePushKind(s string) PushKind {
	for _, k := range []PushKind{PushDirect, PushData1, PushData2, PushData4} {
		if k.String() == s {
			return k
		}
	}
	return 0
}

// Metadata keeps the raw metadata text and, when it is a JSON object, its decoded fields.
type Metadata struct {
	Raw    string
	Fields map[string]any
}

// IsStructured reports whether the metadata decoded as a JSON object.
func (m Metadata) IsStructured() bool {
	return m.Fields != nil
}

// FieldsJSON returns the structured form encoded as JSON, or nil for plain text metadata.
func (m Metadata) FieldsJSON() ([]byte, error) {
	if m.Fields == nil {
		return nil, nil
	}
	return json.Marshal(m.Fields)
}

// Token is a TSB token decoded from a witness script together with its chain provenance.
type Token struct {
	TokenID       string
	Amount        uint64
	TypeCode      uint8
	Metadata      Metadata
	MetadataPush  PushKind
	Timestamp     uint64
	TxID          string
	InputIndex    uint32
	BlockHeight   uint64
	BlockHash     string
	BlockTime     time.Time
	IsValidScript bool
}

// InsertResult reports the outcome of a bulk token write.
type InsertResult struct {
	Inserted   int
	Duplicates int
	Failed     int
}

// Add accumulates another result.
func (r *InsertResult) Add(o InsertResult) {
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Failed += o.Failed
}
