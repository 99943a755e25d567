package codec

import (
	"fmt"
	"math/big"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// BigIntToUint128Limbs splits a non-negative big.Int into little-endian
// (lo, hi) uint64 limbs for WriteUint128. It errors if the value is
// negative or does not fit in 128 bits.
func BigIntToUint128Limbs(v *big.Int) (lo, hi uint64, err error) {
	if v == nil {
		return 0, 0, nil
	}
	if v.Sign() < 0 {
		return 0, 0, fmt.Errorf("codec: negative value %s cannot encode as u128", v)
	}
	if v.Cmp(maxUint128) > 0 {
		return 0, 0, fmt.Errorf("codec: value %s overflows u128", v)
	}
	mask64 := new(big.Int).SetUint64(^uint64(0))
	loBig := new(big.Int).And(v, mask64)
	hiBig := new(big.Int).Rsh(v, 64)
	return loBig.Uint64(), hiBig.Uint64(), nil
}

// Uint128LimbsToBigInt reassembles the value written by
// BigIntToUint128Limbs.
func Uint128LimbsToBigInt(lo, hi uint64) *big.Int {
	result := new(big.Int).SetUint64(hi)
	result.Lsh(result, 64)
	result.Or(result, new(big.Int).SetUint64(lo))
	return result
}

// WriteBigUint128 is a convenience wrapper combining BigIntToUint128Limbs
// and Writer.WriteUint128.
func (w *Writer) WriteBigUint128(v *big.Int) error {
	lo, hi, err := BigIntToUint128Limbs(v)
	if err != nil {
		return err
	}
	w.WriteUint128(lo, hi)
	return nil
}

// ReadBigUint128 is a convenience wrapper combining Reader.ReadUint128 and
// Uint128LimbsToBigInt.
func (r *Reader) ReadBigUint128() (*big.Int, error) {
	lo, hi, err := r.ReadUint128()
	if err != nil {
		return nil, err
	}
	return Uint128LimbsToBigInt(lo, hi), nil
}
