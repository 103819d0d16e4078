// Package codec decodes and encodes TSB token scripts carried in witness data.
//
// A TSB script is an OP_TRUE OP_IF ... OP_ENDIF envelope:
//
//	OP_TRUE OP_IF <"TSB"> <tokenID:16> <amount:8> <type> OP_DROP*4
//	<metadata> <timestamp:8> OP_DROP*2 OP_TRUE OP_ENDIF
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

const (
	tokenIDSize = 16
	uint64Size  = 8
)

var marker = []byte("TSB")

// Result is a successfully decoded token script.
type Result struct {
	Token model.Token
	// Trailing is the number of bytes left after OP_ENDIF. Non-zero values are tolerated.
	Trailing int
}

// Decode parses script as a TSB token. It reports false for anything that does not match the grammar
// and stops at the first mismatching byte.
func Decode(script []byte) (Result, bool) {
	r := reader{buf: script}

	if !r.expect(txscript.OP_TRUE) || !r.expect(txscript.OP_IF) {
		return Result{}, false
	}
	if !r.expect(txscript.OP_DATA_3) || !r.expectBytes(marker) {
		return Result{}, false
	}

	if !r.expect(txscript.OP_DATA_16) {
		return Result{}, false
	}
	rawID, ok := r.next(tokenIDSize)
	if !ok {
		return Result{}, false
	}

	amount, ok := r.uint64Push()
	if !ok {
		return Result{}, false
	}

	typeByte, ok := r.readByte()
	if !ok {
		return Result{}, false
	}

	for i := 0; i < 4; i++ {
		if !r.expect(txscript.OP_DROP) {
			return Result{}, false
		}
	}

	data, push, ok := r.pushData()
	if !ok {
		return Result{}, false
	}

	timestamp, ok := r.uint64Push()
	if !ok {
		return Result{}, false
	}

	if !r.expect(txscript.OP_DROP) || !r.expect(txscript.OP_DROP) {
		return Result{}, false
	}
	if !r.expect(txscript.OP_TRUE) || !r.expect(txscript.OP_ENDIF) {
		return Result{}, false
	}

	return Result{
		Token: model.Token{
			TokenID:       strings.TrimRight(string(rawID), "\x00"),
			Amount:        amount,
			TypeCode:      decodeTypeCode(typeByte),
			Metadata:      decodeMetadata(data),
			MetadataPush:  push,
			Timestamp:     timestamp,
			IsValidScript: true,
		},
		Trailing: r.remaining(),
	}, true
}

// DecodeHex decodes a hex encoded script. Invalid hex is reported as no match.
func DecodeHex(s string) (Result, bool) {
	script, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Result{}, false
	}
	return Decode(script)
}

func decodeTypeCode(b byte) uint8 {
	switch {
	case b >= txscript.OP_1 && b <= txscript.OP_16:
		return b - (txscript.OP_1 - 1)
	case b == txscript.OP_0:
		return 0
	default:
		return b
	}
}

func decodeMetadata(data []byte) model.Metadata {
	md := model.Metadata{Raw: string(data)}

	trimmed := strings.TrimSpace(md.Raw)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return md
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err == nil && fields != nil {
		md.Fields = fields
	}
	return md
}

// reader is a forward-only cursor that never reads past the end of buf.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) readByte() (byte, bool) {
	if r.off >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.off]
	r.off++
	return b, true
}

func (r *reader) next(n uint64) ([]byte, bool) {
	if n > uint64(r.remaining()) {
		return nil, false
	}
	end := r.off + int(n)
	out := r.buf[r.off:end]
	r.off = end
	return out, true
}

func (r *reader) expect(op byte) bool {
	b, ok := r.readByte()
	return ok && b == op
}

func (r *reader) expectBytes(want []byte) bool {
	got, ok := r.next(uint64(len(want)))
	if !ok {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func (r *reader) uint64Push() (uint64, bool) {
	if !r.expect(txscript.OP_DATA_8) {
		return 0, false
	}
	raw, ok := r.next(uint64Size)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}

func (r *reader) pushData() ([]byte, model.PushKind, bool) {
	op, ok := r.readByte()
	if !ok {
		return nil, 0, false
	}

	var (
		size uint64
		kind model.PushKind
	)
	switch {
	case op >= txscript.OP_DATA_1 && op <= txscript.OP_DATA_75:
		size, kind = uint64(op), model.PushDirect
	case op == txscript.OP_PUSHDATA1:
		raw, ok := r.next(1)
		if !ok {
			return nil, 0, false
		}
		size, kind = uint64(raw[0]), model.PushData1
	case op == txscript.OP_PUSHDATA2:
		raw, ok := r.next(2)
		if !ok {
			return nil, 0, false
		}
		size, kind = uint64(binary.LittleEndian.Uint16(raw)), model.PushData2
	case op == txscript.OP_PUSHDATA4:
		raw, ok := r.next(4)
		if !ok {
			return nil, 0, false
		}
		size, kind = uint64(binary.LittleEndian.Uint32(raw)), model.PushData4
	default:
		return nil, 0, false
	}

	if size == 0 {
		return nil, 0, false
	}
	data, ok := r.next(size)
	if !ok {
		return nil, 0, false
	}
	return data, kind, true
}

var typeNames = map[uint8]string{
	0:  "Fungible Token (FT)",
	1:  "Fungible Token (FT)",
	4:  "Oracle-Verified Token",
	8:  "DAO Governance Token",
	10: "Wrapped Asset Token",
}

// TypeName returns the display name of a token type code.
func TypeName(code uint8) string {
	if name, ok := typeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Type(%d)", code)
}
