// Package staking implements the delegation ledger and reward-index
// accrual described in spec.md §4.7: a global fixed-point reward_index fed
// by external emission, settled into each delegation's accrued_rewards
// before any stake-changing message runs.
package staking

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"dytallix/core/state"
	"dytallix/core/types"
)

// Scale is S, the fixed-point scale the reward index is expressed in.
// reward_index carries S units per unit of stake accrued per unit of
// emitted DRT; settlement divides back out by S.
var Scale = big.NewInt(1_000_000_000_000) // 10^12

// Failure kinds per spec.md §4.7.
var (
	ErrZeroAmount       = errors.New("staking: amount must be positive")
	ErrInsufficientStake = errors.New("staking: insufficient stake")
	ErrValidatorUnknown = errors.New("staking: validator unknown")
)

// Ledger is the subset of core/state.Staging the staking engine needs.
// Declared as an interface so the engine can be unit tested without a real
// trie-backed store.
type Ledger interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	SetAccount(addr [20]byte, acct *types.Account) error
	GetValidator(addr [20]byte) (*state.Validator, error)
	SetValidator(addr [20]byte, v *state.Validator) error
	GetDelegation(delegator, validator [20]byte) (*state.Delegation, error)
	SetDelegation(delegator, validator [20]byte, d *state.Delegation) error
	GetStakingGlobal() (*state.StakingGlobal, error)
	SetStakingGlobal(g *state.StakingGlobal) error
}

// mulDivByScale computes a*b/Scale using uint256 widened arithmetic, per
// spec.md §4.7's "all multiplications use widened integer types to avoid
// overflow" rounding rule. Operands are assumed non-negative (stakes,
// emissions, and the reward index are never negative).
func mulDivByScale(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	ua, overflowA := uint256.FromBig(a)
	ub, overflowB := uint256.FromBig(b)
	if overflowA || overflowB {
		// Operand exceeds 256 bits: fall back to big.Int, which never
		// overflows but is slower. This path is not expected to be hit by
		// any realistic DGT/DRT supply.
		product := new(big.Int).Mul(a, b)
		return product.Quo(product, Scale)
	}
	scale256, _ := uint256.FromBig(Scale)
	product := new(uint256.Int).Mul(ua, ub)
	quotient := new(uint256.Int).Div(product, scale256)
	return quotient.ToBig()
}

// mulByScaleDivTotal computes amount*Scale/total using uint256 widened
// arithmetic, the reward_index update rule from spec.md §4.7.
func mulByScaleDivTotal(amount, total *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || total == nil || total.Sign() == 0 {
		return big.NewInt(0)
	}
	ua, overflowA := uint256.FromBig(amount)
	ut, overflowT := uint256.FromBig(total)
	if overflowA || overflowT {
		product := new(big.Int).Mul(amount, Scale)
		return product.Quo(product, total)
	}
	scale256, _ := uint256.FromBig(Scale)
	product := new(uint256.Int).Mul(ua, scale256)
	quotient := new(uint256.Int).Div(product, ut)
	return quotient.ToBig()
}
