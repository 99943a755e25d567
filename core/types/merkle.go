package types

import (
	"crypto/sha256"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// MerkleRoot folds an ordered list of leaf hashes into a single root by
// repeated pairwise sha256 hashing, duplicating the last leaf at each level
// when the level's length is odd. An empty list yields the same empty-root
// sentinel core/genesis uses for the genesis block's tx/receipts roots, so
// "no transactions" always hashes identically regardless of height.
func MerkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return gethtypes.EmptyRootHash.Bytes()
	}
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			sum := sha256.Sum256(append(append([]byte{}, left...), right...))
			next = append(next, sum[:])
		}
		level = next
	}
	return level[0]
}
