package state

// Keyspace prefixes partition the single world-state trie into the record
// kinds spec.md §3 defines. Every stored key is prefix || payload, keccak256
// hashed before being handed to the underlying trie (storage/trie.Trie
// expects pre-hashed keys).
var (
	prefixAccount        = []byte("acct/")
	prefixValidator      = []byte("val/")
	prefixDelegation     = []byte("del/")
	prefixStakingGlobal  = []byte("staking/global")
	prefixEmissionState  = []byte("emission/state")
	prefixProposal       = []byte("gov/proposal/")
	prefixVote           = []byte("gov/vote/")
	prefixContractCode   = []byte("contract/code/")
	prefixContractState  = []byte("contract/state/")
	prefixReceipt        = []byte("receipt/")
	prefixParameter      = []byte("param/")
	prefixBlockHeader    = []byte("header/")
)

func accountKey(addr [20]byte) []byte {
	return append(append([]byte{}, prefixAccount...), addr[:]...)
}

func validatorKey(addr [20]byte) []byte {
	return append(append([]byte{}, prefixValidator...), addr[:]...)
}

func delegationKey(delegator, validator [20]byte) []byte {
	k := append([]byte{}, prefixDelegation...)
	k = append(k, delegator[:]...)
	k = append(k, validator[:]...)
	return k
}

func proposalKey(id uint64) []byte {
	return append(append([]byte{}, prefixProposal...), uint64BE(id)...)
}

func voteKey(proposalID uint64, voter [20]byte) []byte {
	k := append([]byte{}, prefixVote...)
	k = append(k, uint64BE(proposalID)...)
	k = append(k, voter[:]...)
	return k
}

func contractCodeKey(addr [20]byte) []byte {
	return append(append([]byte{}, prefixContractCode...), addr[:]...)
}

func contractStateKey(addr [20]byte, slot []byte) []byte {
	k := append([]byte{}, prefixContractState...)
	k = append(k, addr[:]...)
	k = append(k, slot...)
	return k
}

func receiptKey(txHash []byte) []byte {
	return append(append([]byte{}, prefixReceipt...), txHash...)
}

func parameterKey(name string) []byte {
	return append(append([]byte{}, prefixParameter...), []byte(name)...)
}

func blockHeaderKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlockHeader...), uint64BE(height)...)
}

func uint64BE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
