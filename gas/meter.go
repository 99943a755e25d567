package gas

import (
	"fmt"
	"math/big"
)

// ErrOutOfGas is returned by Meter.Charge when a charge would exceed the
// remaining gas. Callers should treat this as transaction failure: roll
// back state mutations but keep the gas actually consumed.
var ErrOutOfGas = fmt.Errorf("gas: out of gas")

// Meter tracks the remaining gas for a single transaction's execution. It
// does not itself touch account balances; Hold/Settle (below) do that
// against a Ledger.
type Meter struct {
	limit     uint64
	remaining uint64
}

// NewMeter returns a meter with limit gas available.
func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit, remaining: limit}
}

// Limit returns the gas limit the meter was constructed with.
func (m *Meter) Limit() uint64 { return m.limit }

// Remaining returns the gas not yet consumed.
func (m *Meter) Remaining() uint64 { return m.remaining }

// Used returns the gas consumed so far.
func (m *Meter) Used() uint64 { return m.limit - m.remaining }

// Charge deducts cost from the remaining gas. It returns ErrOutOfGas
// (consuming all remaining gas as a side effect) rather than partially
// charging, so Used() after a failed Charge always equals the original
// limit.
func (m *Meter) Charge(cost uint64) error {
	if cost > m.remaining {
		m.remaining = 0
		return ErrOutOfGas
	}
	m.remaining -= cost
	return nil
}

// Ledger is the subset of account balance operations the gas hold/refund
// cycle needs. core/state.Staging satisfies it via small adapter calls from
// the executor package.
type Ledger interface {
	DebitDGT(addr [20]byte, amount *big.Int) error
	CreditDGT(addr [20]byte, amount *big.Int) error
}

// Hold charges gasLimit*gasPrice from sender's liquid DGT balance upfront,
// as spec.md §4.5 requires before any message in the transaction runs.
func Hold(ledger Ledger, sender [20]byte, gasLimit uint64, gasPrice *big.Int) (*big.Int, error) {
	fee := FeeForGas(gasLimit, gasPrice)
	if err := ledger.DebitDGT(sender, fee); err != nil {
		return nil, fmt.Errorf("gas: hold fee: %w", err)
	}
	return fee, nil
}

// Settle resolves the gas hold after execution: refunds the unused portion
// of gasLimit back to sender, and credits the block proposer with the fee
// on gas actually used. A failed transaction gets the same split — only gas
// consumed prior to the failure is retained.
func Settle(ledger Ledger, sender, proposer [20]byte, m *Meter, gasPrice *big.Int) error {
	used := FeeForGas(m.Used(), gasPrice)
	unused := FeeForGas(m.Remaining(), gasPrice)
	if unused.Sign() > 0 {
		if err := ledger.CreditDGT(sender, unused); err != nil {
			return fmt.Errorf("gas: refund sender: %w", err)
		}
	}
	if used.Sign() > 0 {
		if err := ledger.CreditDGT(proposer, used); err != nil {
			return fmt.Errorf("gas: credit proposer: %w", err)
		}
	}
	return nil
}

// FeeForGas computes gasAmount*gasPrice as a DGT-denominated fee.
func FeeForGas(gasAmount uint64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasAmount), gasPrice)
}

// MinFee returns the minimum acceptable fee for a transaction declaring
// gasLimit, at the given price floor — mempool's min_fee(gas_limit) from
// spec.md §4.4.
func MinFee(gasLimit uint64, gasPriceMin *big.Int) *big.Int {
	return FeeForGas(gasLimit, gasPriceMin)
}
