package types

import "math/big"

// Account is the per-address state record. BalanceDGT is the governance
// token (stake-eligible); BalanceDRT is the reward token minted by the
// emission schedule. PubKeyAlgo/PubKeyBytes are populated the first time an
// account is seen signing a transaction, and pin that account to one
// signature algorithm thereafter.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalanceDGT  *big.Int `json:"balanceDGT"`
	BalanceDRT  *big.Int `json:"balanceDRT"`
	PubKeyAlgo  string   `json:"pubkeyAlgo,omitempty"`
	PubKeyBytes []byte   `json:"pubkeyBytes,omitempty"`
	CodeHash    []byte   `json:"codeHash,omitempty"`
	StorageRoot []byte   `json:"storageRoot,omitempty"`
}

// NewAccount returns a zero-balance account with nonce 0.
func NewAccount() *Account {
	return &Account{
		BalanceDGT: big.NewInt(0),
		BalanceDRT: big.NewInt(0),
	}
}
