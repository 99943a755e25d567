// core/genesis/bech32.go
package genesis

import (
	"fmt"

	"dytallix/crypto"
)

// ParseBech32Account decodes a dytallix-HRP bech32 address into its raw
// 20-byte form, for use in genesis allocation, validator, and parameter
// entries.
func ParseBech32Account(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}
