package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

func numericFromUint64(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

// uint64FromNumeric converts an integral NUMERIC back to uint64. pgx may return the value with a positive exponent.
func uint64FromNumeric(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return 0, fmt.Errorf("numeric is not a finite value")
	}

	v := new(big.Int).Set(n.Int)
	if n.Exp != 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(n.Exp))), nil)
		if n.Exp > 0 {
			v.Mul(v, scale)
		} else {
			rem := new(big.Int)
			v.QuoRem(v, scale, rem)
			if rem.Sign() != 0 {
				return 0, fmt.Errorf("numeric %s is not an integer", n.Int)
			}
		}
	}

	if !v.IsUint64() {
		return 0, fmt.Errorf("numeric %s out of uint64 range", v)
	}
	return v.Uint64(), nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
