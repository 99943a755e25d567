// Package mempool implements the admission pipeline and pending-transaction
// set described in spec.md §4.4: decode -> signature verify -> chain-id
// check -> nonce check -> gas-limit check -> fee check -> balance check,
// followed by an ordered-by-(fee desc, arrival asc) pending set with a
// per-sender nonce sub-ordering.
package mempool

import (
	"fmt"
	"math/big"

	"dytallix/core/types"
)

// AdmissionErrorKind enumerates the admission failure kinds from spec.md §7.
type AdmissionErrorKind string

const (
	DecodeError       AdmissionErrorKind = "DecodeError"
	BadSignature      AdmissionErrorKind = "BadSignature"
	WrongChain        AdmissionErrorKind = "WrongChain"
	NonceGap          AdmissionErrorKind = "NonceGap"
	GasExceedsLimit   AdmissionErrorKind = "GasExceedsLimit"
	InsufficientFee   AdmissionErrorKind = "InsufficientFee"
	InsufficientFunds AdmissionErrorKind = "InsufficientFunds"
)

// AdmissionError wraps one of the kinds above with the underlying reason.
type AdmissionError struct {
	Kind AdmissionErrorKind
	Err  error
}

func (e *AdmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mempool: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("mempool: %s", e.Kind)
}

func (e *AdmissionError) Unwrap() error { return e.Err }

func admissionErr(kind AdmissionErrorKind, format string, args ...interface{}) *AdmissionError {
	return &AdmissionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// StateView is the read-only account lookup the admission pipeline needs.
// *state.Snapshot and *state.Staging both satisfy it.
type StateView interface {
	GetAccount(addr [20]byte) (*types.Account, error)
}

// Config holds the admission thresholds the mempool enforces. These mirror
// the governable parameters (gas_limit, gas_price_min); the executor does
// not update them, and they change only when Mempool.SetParams is called.
type Config struct {
	ChainID     string
	GasLimit    uint64
	GasPriceMin *big.Int
}

// messageDGTSpend returns the amount of DGT a message commits the sender to
// spending beyond the transaction fee, for the balance check in step 7.
// Messages that only receive funds (undelegate, claim_rewards) or that do
// not move DGT (votes, contract calls without an attached value) return
// zero.
func messageDGTSpend(msg types.Message) *big.Int {
	switch m := msg.(type) {
	case *types.TransferMessage:
		if m.Denom == "DGT" {
			return new(big.Int).SetBytes(m.Amount)
		}
	case *types.DelegateMessage:
		return new(big.Int).SetBytes(m.Amount)
	case *types.SubmitProposalMessage:
		return new(big.Int).SetBytes(m.Deposit)
	case *types.DepositMessage:
		return new(big.Int).SetBytes(m.Amount)
	}
	return big.NewInt(0)
}

// validate runs the admission pipeline for tx. expectedNonce is the
// sender's on-chain nonce plus the count of that sender's already-pending
// transactions (strict, no gaps); reservedSpend is the DGT those pending
// transactions already commit the sender to. It returns the recovered
// sender address and the transaction's fee on success.
func validate(cfg Config, view StateView, tx *types.Transaction, reservedSpend *big.Int, expectedNonce uint64) ([20]byte, *big.Int, error) {
	var zero [20]byte
	if tx == nil || len(tx.Messages) == 0 {
		return zero, nil, admissionErr(DecodeError, "transaction carries no messages")
	}

	sender, _, err := tx.Verify()
	if err != nil {
		return zero, nil, &AdmissionError{Kind: BadSignature, Err: err}
	}
	var senderArr [20]byte
	copy(senderArr[:], sender.Bytes())

	if tx.ChainID != cfg.ChainID {
		return zero, nil, admissionErr(WrongChain, "tx chain_id %q != %q", tx.ChainID, cfg.ChainID)
	}

	if tx.Nonce != expectedNonce {
		return zero, nil, admissionErr(NonceGap, "nonce %d != expected %d", tx.Nonce, expectedNonce)
	}

	if tx.GasLimit > cfg.GasLimit {
		return zero, nil, admissionErr(GasExceedsLimit, "gas_limit %d exceeds param %d", tx.GasLimit, cfg.GasLimit)
	}

	fee := new(big.Int).SetBytes(tx.Fee)
	minFee := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), cfg.GasPriceMin)
	if fee.Cmp(minFee) < 0 {
		return zero, nil, admissionErr(InsufficientFee, "fee %s below min_fee %s", fee, minFee)
	}

	acct, err := view.GetAccount(senderArr)
	if err != nil {
		return zero, nil, admissionErr(DecodeError, "load sender account: %w", err)
	}

	spend := new(big.Int).Set(fee)
	for _, msg := range tx.Messages {
		spend.Add(spend, messageDGTSpend(msg))
	}
	total := new(big.Int).Add(reservedSpend, spend)
	if total.Cmp(acct.BalanceDGT) > 0 {
		return zero, nil, admissionErr(InsufficientFunds, "spend %s exceeds balance %s", total, acct.BalanceDGT)
	}

	return senderArr, fee, nil
}
