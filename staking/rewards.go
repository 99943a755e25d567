package staking

import (
	"fmt"
	"math/big"

	"dytallix/core/state"
)

// ApplyExternalEmission pushes amount (DRT) into the staking pool, updating
// the global reward_index per spec.md §4.7:
//
//	reward_index += amount * S / total_stake   (if total_stake > 0)
//	else pending_staking_emission += amount    (queued)
func ApplyExternalEmission(ledger Ledger, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	global, err := ledger.GetStakingGlobal()
	if err != nil {
		return fmt.Errorf("staking: load global: %w", err)
	}
	if global == nil {
		global = &state.StakingGlobal{TotalStake: big.NewInt(0), RewardIndex: big.NewInt(0), PendingStakingEmission: big.NewInt(0)}
	}
	if global.TotalStake == nil {
		global.TotalStake = big.NewInt(0)
	}
	if global.RewardIndex == nil {
		global.RewardIndex = big.NewInt(0)
	}
	if global.PendingStakingEmission == nil {
		global.PendingStakingEmission = big.NewInt(0)
	}

	if global.TotalStake.Sign() > 0 {
		increment := mulByScaleDivTotal(amount, global.TotalStake)
		global.RewardIndex = new(big.Int).Add(global.RewardIndex, increment)
	} else {
		global.PendingStakingEmission = new(big.Int).Add(global.PendingStakingEmission, amount)
	}
	if err := ledger.SetStakingGlobal(global); err != nil {
		return fmt.Errorf("staking: persist global: %w", err)
	}
	return nil
}

// settle applies pending reward_index movement to delegation before any
// stake-changing operation, per spec.md §4.7:
//
//	pending = (reward_index - delegation.last_reward_index) * delegation.stake / S
//	delegation.accrued_rewards += pending
//	delegation.last_reward_index = reward_index
func settle(d *state.Delegation, rewardIndex *big.Int) {
	if d.LastRewardIndex == nil {
		d.LastRewardIndex = big.NewInt(0)
	}
	if d.AccruedRewards == nil {
		d.AccruedRewards = big.NewInt(0)
	}
	if d.Stake == nil {
		d.Stake = big.NewInt(0)
	}
	delta := new(big.Int).Sub(rewardIndex, d.LastRewardIndex)
	if delta.Sign() > 0 && d.Stake.Sign() > 0 {
		pending := mulDivByScale(delta, d.Stake)
		d.AccruedRewards = new(big.Int).Add(d.AccruedRewards, pending)
	}
	d.LastRewardIndex = new(big.Int).Set(rewardIndex)
}

func loadGlobal(ledger Ledger) (*state.StakingGlobal, error) {
	global, err := ledger.GetStakingGlobal()
	if err != nil {
		return nil, fmt.Errorf("staking: load global: %w", err)
	}
	if global == nil {
		global = &state.StakingGlobal{TotalStake: big.NewInt(0), RewardIndex: big.NewInt(0), PendingStakingEmission: big.NewInt(0)}
	}
	if global.TotalStake == nil {
		global.TotalStake = big.NewInt(0)
	}
	if global.RewardIndex == nil {
		global.RewardIndex = big.NewInt(0)
	}
	if global.PendingStakingEmission == nil {
		global.PendingStakingEmission = big.NewInt(0)
	}
	return global, nil
}

func loadDelegation(ledger Ledger, delegator, validator [20]byte) (*state.Delegation, error) {
	d, err := ledger.GetDelegation(delegator, validator)
	if err != nil {
		return nil, fmt.Errorf("staking: load delegation: %w", err)
	}
	if d == nil {
		d = &state.Delegation{Stake: big.NewInt(0), LastRewardIndex: big.NewInt(0), AccruedRewards: big.NewInt(0)}
	}
	return d, nil
}

// Delegate settles pending rewards, then increases delegator's stake on
// validator by amount (DGT moved from liquid balance to locked stake).
func Delegate(ledger Ledger, delegator, validator [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	v, err := ledger.GetValidator(validator)
	if err != nil {
		return fmt.Errorf("staking: load validator: %w", err)
	}
	if v == nil {
		return ErrValidatorUnknown
	}

	global, err := loadGlobal(ledger)
	if err != nil {
		return err
	}
	d, err := loadDelegation(ledger, delegator, validator)
	if err != nil {
		return err
	}
	settle(d, global.RewardIndex)

	acct, err := ledger.GetAccount(delegator)
	if err != nil {
		return fmt.Errorf("staking: load delegator account: %w", err)
	}
	if acct.BalanceDGT == nil || acct.BalanceDGT.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	acct.BalanceDGT = new(big.Int).Sub(acct.BalanceDGT, amount)
	if err := ledger.SetAccount(delegator, acct); err != nil {
		return fmt.Errorf("staking: debit delegator: %w", err)
	}

	d.Stake = new(big.Int).Add(d.Stake, amount)
	if err := ledger.SetDelegation(delegator, validator, d); err != nil {
		return fmt.Errorf("staking: persist delegation: %w", err)
	}

	if v.TotalDelegated == nil {
		v.TotalDelegated = big.NewInt(0)
	}
	v.TotalDelegated = new(big.Int).Add(v.TotalDelegated, amount)
	if err := ledger.SetValidator(validator, v); err != nil {
		return fmt.Errorf("staking: persist validator: %w", err)
	}

	global.TotalStake = new(big.Int).Add(global.TotalStake, amount)
	if err := ledger.SetStakingGlobal(global); err != nil {
		return fmt.Errorf("staking: persist global: %w", err)
	}
	return nil
}

// Undelegate settles pending rewards, then immediately releases amount of
// stake back to the delegator's liquid DGT balance. The MVP has no
// unbonding period (spec.md §4.7); ProcessUnbonding below reserves the
// interface for when one is added.
func Undelegate(ledger Ledger, delegator, validator [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	v, err := ledger.GetValidator(validator)
	if err != nil {
		return fmt.Errorf("staking: load validator: %w", err)
	}
	if v == nil {
		return ErrValidatorUnknown
	}

	global, err := loadGlobal(ledger)
	if err != nil {
		return err
	}
	d, err := loadDelegation(ledger, delegator, validator)
	if err != nil {
		return err
	}
	settle(d, global.RewardIndex)

	if d.Stake.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	d.Stake = new(big.Int).Sub(d.Stake, amount)
	if err := ledger.SetDelegation(delegator, validator, d); err != nil {
		return fmt.Errorf("staking: persist delegation: %w", err)
	}

	acct, err := ledger.GetAccount(delegator)
	if err != nil {
		return fmt.Errorf("staking: load delegator account: %w", err)
	}
	if acct.BalanceDGT == nil {
		acct.BalanceDGT = big.NewInt(0)
	}
	acct.BalanceDGT = new(big.Int).Add(acct.BalanceDGT, amount)
	if err := ledger.SetAccount(delegator, acct); err != nil {
		return fmt.Errorf("staking: credit delegator: %w", err)
	}

	if v.TotalDelegated == nil || v.TotalDelegated.Cmp(amount) < 0 {
		return fmt.Errorf("staking: validator total delegated underflow")
	}
	v.TotalDelegated = new(big.Int).Sub(v.TotalDelegated, amount)
	if err := ledger.SetValidator(validator, v); err != nil {
		return fmt.Errorf("staking: persist validator: %w", err)
	}

	global.TotalStake = new(big.Int).Sub(global.TotalStake, amount)
	if global.TotalStake.Sign() < 0 {
		global.TotalStake = big.NewInt(0)
	}
	if err := ledger.SetStakingGlobal(global); err != nil {
		return fmt.Errorf("staking: persist global: %w", err)
	}
	return nil
}

// ClaimRewards settles pending rewards then pays out accrued_rewards in
// full, crediting the delegator's liquid DRT balance and zeroing the
// delegation's accrued amount.
func ClaimRewards(ledger Ledger, delegator, validator [20]byte) (*big.Int, error) {
	v, err := ledger.GetValidator(validator)
	if err != nil {
		return nil, fmt.Errorf("staking: load validator: %w", err)
	}
	if v == nil {
		return nil, ErrValidatorUnknown
	}

	global, err := loadGlobal(ledger)
	if err != nil {
		return nil, err
	}
	d, err := loadDelegation(ledger, delegator, validator)
	if err != nil {
		return nil, err
	}
	settle(d, global.RewardIndex)

	payout := new(big.Int).Set(d.AccruedRewards)
	if payout.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	d.AccruedRewards = big.NewInt(0)
	if err := ledger.SetDelegation(delegator, validator, d); err != nil {
		return nil, fmt.Errorf("staking: persist delegation: %w", err)
	}

	acct, err := ledger.GetAccount(delegator)
	if err != nil {
		return nil, fmt.Errorf("staking: load delegator account: %w", err)
	}
	if acct.BalanceDRT == nil {
		acct.BalanceDRT = big.NewInt(0)
	}
	acct.BalanceDRT = new(big.Int).Add(acct.BalanceDRT, payout)
	if err := ledger.SetAccount(delegator, acct); err != nil {
		return nil, fmt.Errorf("staking: credit delegator: %w", err)
	}
	return payout, nil
}

// ProcessUnbonding is a reserved no-op: the MVP has no unbonding period
// (undelegation in this package is immediate), but the block executor
// calls this at every end_block so a future unbonding queue can be added
// without changing the executor's call sequence.
func ProcessUnbonding(ledger Ledger, height uint64) error {
	return nil
}
