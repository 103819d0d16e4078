package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/txscript"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

var (
	errTokenIDTooLong  = errors.New("token id longer than 16 bytes")
	errEmptyMetadata   = errors.New("metadata is empty")
	errTypeCodeAliased = errors.New("type code collides with small integer opcodes")
)

// Encode builds a TSB token script for t. Metadata is pushed with the smallest push opcode that fits.
// Raw metadata takes precedence; structured fields are JSON encoded when Raw is empty.
func Encode(t model.Token) ([]byte, error) {
	if len(t.TokenID) > tokenIDSize {
		return nil, errTokenIDTooLong
	}
	typeByte, err := encodeTypeCode(t.TypeCode)
	if err != nil {
		return nil, err
	}

	metadata := []byte(t.Metadata.Raw)
	if len(metadata) == 0 && t.Metadata.Fields != nil {
		if metadata, err = json.Marshal(t.Metadata.Fields); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	if len(metadata) == 0 {
		return nil, errEmptyMetadata
	}
	if uint64(len(metadata)) > math.MaxUint32 {
		return nil, fmt.Errorf("metadata of %d bytes exceeds pushdata4", len(metadata))
	}

	var buf bytes.Buffer
	buf.Grow(len(metadata) + 64)

	buf.Write([]byte{txscript.OP_TRUE, txscript.OP_IF, txscript.OP_DATA_3})
	buf.Write(marker)

	buf.WriteByte(txscript.OP_DATA_16)
	id := make([]byte, tokenIDSize)
	copy(id, t.TokenID)
	buf.Write(id)

	writeUint64(&buf, t.Amount)
	buf.WriteByte(typeByte)
	buf.Write([]byte{txscript.OP_DROP, txscript.OP_DROP, txscript.OP_DROP, txscript.OP_DROP})

	writePush(&buf, metadata)
	writeUint64(&buf, t.Timestamp)

	buf.Write([]byte{txscript.OP_DROP, txscript.OP_DROP, txscript.OP_TRUE, txscript.OP_ENDIF})
	return buf.Bytes(), nil
}

func encodeTypeCode(code uint8) (byte, error) {
	switch {
	case code == 0:
		return txscript.OP_0, nil
	case code <= 16:
		return txscript.OP_1 - 1 + code, nil
	case code >= txscript.OP_1 && code <= txscript.OP_16:
		return 0, errTypeCodeAliased
	default:
		return code, nil
	}
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var raw [uint64Size]byte
	binary.BigEndian.PutUint64(raw[:], v)
	buf.WriteByte(txscript.OP_DATA_8)
	buf.Write(raw[:])
}

func writePush(buf *bytes.Buffer, data []byte) {
	n := len(data)
	switch {
	case n <= txscript.OP_DATA_75:
		buf.WriteByte(byte(n))
	case n <= math.MaxUint8:
		buf.Write([]byte{txscript.OP_PUSHDATA1, byte(n)})
	case n <= math.MaxUint16:
		var raw [2]byte
		binary.LittleEndian.PutUint16(raw[:], uint16(n))
		buf.WriteByte(txscript.OP_PUSHDATA2)
		buf.Write(raw[:])
	default:
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], uint32(n))
		buf.WriteByte(txscript.OP_PUSHDATA4)
		buf.Write(raw[:])
	}
	buf.Write(data)
}
