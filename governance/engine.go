package governance

import (
	"fmt"
	"math/big"
	"strconv"

	"dytallix/core/state"
	"dytallix/observability"
)

// Ledger is the subset of core/state.Staging the governance engine needs.
type Ledger interface {
	GetProposal(id uint64) (*state.Proposal, error)
	SetProposal(p *state.Proposal) error
	GetVote(proposalID uint64, voter [20]byte) (*state.Vote, error)
	SetVote(v *state.Vote) error
	ParamStoreGet(name string) ([]byte, bool, error)
	ParamStoreSet(name string, value []byte) error
}

// VoteChoice enumerates the ballot selections spec.md §4.8's tally formula
// distinguishes.
type VoteChoice string

const (
	VoteYes     VoteChoice = "yes"
	VoteNo      VoteChoice = "no"
	VoteAbstain VoteChoice = "abstain"
	VoteVeto    VoteChoice = "veto"
)

func (c VoteChoice) valid() bool {
	switch c {
	case VoteYes, VoteNo, VoteAbstain, VoteVeto:
		return true
	default:
		return false
	}
}

// Config holds the governable parameters that drive proposal lifecycle
// timing and tally thresholds, loaded from the same param store
// ParameterChange proposals mutate.
type Config struct {
	MinDeposit            *big.Int
	DepositPeriodBlocks   uint64
	VotingPeriodBlocks    uint64
	QuorumBps             uint64
	ThresholdBps          uint64
	VetoThresholdBps      uint64
}

// DefaultDepositPeriodBlocks bounds how long a proposal may sit in the
// deposit period before it is rejected for failing to meet min_deposit.
// It is a fixed constant rather than a registry entry: spec.md §4.8 does
// not list it among the governable keys.
const DefaultDepositPeriodBlocks = 100_800 // ~7 days at 6s blocks

// LoadConfig reads the governance-relevant parameters from ledger,
// defaulting any that are absent (e.g. prior to their first governance
// proposal) to conservative values.
func LoadConfig(ledger Ledger) (Config, error) {
	cfg := Config{
		MinDeposit:          big.NewInt(0),
		DepositPeriodBlocks: DefaultDepositPeriodBlocks,
		VotingPeriodBlocks:  1,
		QuorumBps:           0,
		ThresholdBps:        basisPointsDenominator,
		VetoThresholdBps:    basisPointsDenominator,
	}
	if raw, ok, err := ledger.ParamStoreGet("min_deposit"); err != nil {
		return cfg, fmt.Errorf("governance: load min_deposit: %w", err)
	} else if ok {
		v, parseOK := new(big.Int).SetString(string(raw), 10)
		if !parseOK {
			return cfg, fmt.Errorf("governance: %w: min_deposit %q", ErrBadValue, raw)
		}
		cfg.MinDeposit = v
	}
	if v, ok, err := loadUint(ledger, "voting_period_blocks"); err != nil {
		return cfg, err
	} else if ok {
		cfg.VotingPeriodBlocks = v
	}
	if v, ok, err := loadUint(ledger, "quorum"); err != nil {
		return cfg, err
	} else if ok {
		cfg.QuorumBps = v
	}
	if v, ok, err := loadUint(ledger, "threshold"); err != nil {
		return cfg, err
	} else if ok {
		cfg.ThresholdBps = v
	}
	if v, ok, err := loadUint(ledger, "veto_threshold"); err != nil {
		return cfg, err
	} else if ok {
		cfg.VetoThresholdBps = v
	}
	return cfg, nil
}

func loadUint(ledger Ledger, key string) (uint64, bool, error) {
	raw, ok, err := ledger.ParamStoreGet(key)
	if err != nil {
		return 0, false, fmt.Errorf("governance: load %s: %w", key, err)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("governance: %w: %s %q", ErrBadValue, key, raw)
	}
	return v, true, nil
}

// SubmitProposal validates key/value against the registry, then records a
// new proposal in the deposit period. If deposit already meets min_deposit
// it is promoted straight into the voting period, per spec.md §4.8's "on
// sum(deposits) >= min_deposit ... VotingPeriod" rule.
func SubmitProposal(ledger Ledger, cfg Config, proposer [20]byte, key, value string, deposit *big.Int, nextID uint64, height int64) (*state.Proposal, error) {
	if _, err := ParseAndValidate(key, value); err != nil {
		return nil, err
	}
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	p := &state.Proposal{
		ID:           nextID,
		Key:          key,
		Value:        value,
		Proposer:     proposer,
		Deposit:      new(big.Int).Set(deposit),
		Status:       state.ProposalStatusDeposit,
		SubmittedAt:  height,
		YesVotes:     big.NewInt(0),
		NoVotes:      big.NewInt(0),
		AbstainVotes: big.NewInt(0),
		VetoVotes:    big.NewInt(0),
	}
	p.DepositEndsAt = height + int64(cfg.DepositPeriodBlocks)
	promote(p, cfg, height)
	if err := ledger.SetProposal(p); err != nil {
		return nil, fmt.Errorf("governance: persist proposal: %w", err)
	}
	return p, nil
}

// AddDeposit increases a deposit-period proposal's deposit, promoting it to
// the voting period immediately if the new total meets min_deposit.
func AddDeposit(ledger Ledger, cfg Config, proposalID uint64, amount *big.Int, height int64) (*state.Proposal, error) {
	p, err := ledger.GetProposal(proposalID)
	if err != nil {
		return nil, fmt.Errorf("governance: load proposal: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("governance: proposal %d not found", proposalID)
	}
	if p.Status != state.ProposalStatusDeposit {
		return nil, fmt.Errorf("governance: proposal %d is not in the deposit period", proposalID)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("governance: deposit amount must be positive")
	}
	p.Deposit = new(big.Int).Add(p.Deposit, amount)
	promote(p, cfg, height)
	if err := ledger.SetProposal(p); err != nil {
		return nil, fmt.Errorf("governance: persist proposal: %w", err)
	}
	return p, nil
}

func promote(p *state.Proposal, cfg Config, height int64) {
	if p.Status == state.ProposalStatusDeposit && p.Deposit.Cmp(cfg.MinDeposit) >= 0 {
		p.Status = state.ProposalStatusVoting
		p.VotingEndsAt = height + int64(cfg.VotingPeriodBlocks)
	}
}

// CastVote records voter's ballot on a proposal currently in its voting
// period, weighted by power (the voter's voting-power snapshot taken by
// the executor at begin_block).
func CastVote(ledger Ledger, proposalID uint64, voter [20]byte, choice VoteChoice, power *big.Int) error {
	if !choice.valid() {
		return fmt.Errorf("governance: invalid vote choice %q", choice)
	}
	p, err := ledger.GetProposal(proposalID)
	if err != nil {
		return fmt.Errorf("governance: load proposal: %w", err)
	}
	if p == nil {
		return fmt.Errorf("governance: proposal %d not found", proposalID)
	}
	if p.Status != state.ProposalStatusVoting {
		return fmt.Errorf("governance: proposal %d is not in its voting period", proposalID)
	}
	if power == nil || power.Sign() <= 0 {
		return fmt.Errorf("governance: voter has no voting power")
	}

	existing, err := ledger.GetVote(proposalID, voter)
	if err != nil {
		return fmt.Errorf("governance: load existing vote: %w", err)
	}
	if existing != nil {
		subtract(p, VoteChoice(existing.Choice), existing.Power)
	}
	add(p, choice, power)

	if err := ledger.SetVote(&state.Vote{ProposalID: proposalID, Voter: voter, Choice: string(choice), Power: new(big.Int).Set(power)}); err != nil {
		return fmt.Errorf("governance: persist vote: %w", err)
	}
	if err := ledger.SetProposal(p); err != nil {
		return fmt.Errorf("governance: persist proposal: %w", err)
	}
	return nil
}

func add(p *state.Proposal, choice VoteChoice, power *big.Int) {
	switch choice {
	case VoteYes:
		p.YesVotes = new(big.Int).Add(p.YesVotes, power)
	case VoteNo:
		p.NoVotes = new(big.Int).Add(p.NoVotes, power)
	case VoteAbstain:
		p.AbstainVotes = new(big.Int).Add(p.AbstainVotes, power)
	case VoteVeto:
		p.VetoVotes = new(big.Int).Add(p.VetoVotes, power)
	}
}

func subtract(p *state.Proposal, choice VoteChoice, power *big.Int) {
	switch choice {
	case VoteYes:
		p.YesVotes = new(big.Int).Sub(p.YesVotes, power)
	case VoteNo:
		p.NoVotes = new(big.Int).Sub(p.NoVotes, power)
	case VoteAbstain:
		p.AbstainVotes = new(big.Int).Sub(p.AbstainVotes, power)
	case VoteVeto:
		p.VetoVotes = new(big.Int).Sub(p.VetoVotes, power)
	}
}

// Tally computes the outcome of a completed voting period, per spec.md
// §4.8's turnout/quorum/veto/threshold formula. totalVotingPower is the
// snapshot the executor took at begin_block for the height the voting
// period ends at.
func Tally(p *state.Proposal, cfg Config, totalVotingPower *big.Int) state.ProposalStatus {
	yes, no, abstain, veto := p.YesVotes, p.NoVotes, p.AbstainVotes, p.VetoVotes
	total := new(big.Int).Add(yes, no)
	total.Add(total, abstain)
	total.Add(total, veto)

	if totalVotingPower == nil || totalVotingPower.Sign() == 0 {
		return state.ProposalStatusRejected
	}
	turnoutBps := new(big.Int).Mul(total, big.NewInt(basisPointsDenominator))
	turnoutBps.Quo(turnoutBps, totalVotingPower)
	if turnoutBps.Uint64() < cfg.QuorumBps {
		return state.ProposalStatusRejected
	}

	if total.Sign() > 0 {
		vetoBps := new(big.Int).Mul(veto, big.NewInt(basisPointsDenominator))
		vetoBps.Quo(vetoBps, total)
		if vetoBps.Uint64() >= cfg.VetoThresholdBps {
			return state.ProposalStatusRejected
		}
	}

	yesBase := new(big.Int).Add(yes, no)
	yesBase.Add(yesBase, veto)
	if yesBase.Sign() > 0 {
		yesBps := new(big.Int).Mul(yes, big.NewInt(basisPointsDenominator))
		yesBps.Quo(yesBps, yesBase)
		if yesBps.Uint64() >= cfg.ThresholdBps {
			return state.ProposalStatusPassed
		}
	}
	return state.ProposalStatusRejected
}

// AdvanceDepositPeriods rejects every candidate proposal (by id) still in
// the deposit period whose deadline has passed, per spec.md §4.8's "else
// at deposit deadline: Rejected" rule. Candidates are supplied by the
// caller (the executor enumerates the proposal keyspace); this package
// stays storage-iteration agnostic.
func AdvanceDepositPeriods(ledger Ledger, height int64, candidates []uint64) error {
	for _, id := range candidates {
		p, err := ledger.GetProposal(id)
		if err != nil {
			return fmt.Errorf("governance: load proposal %d: %w", id, err)
		}
		if p == nil || p.Status != state.ProposalStatusDeposit {
			continue
		}
		if height < p.DepositEndsAt {
			continue
		}
		p.Status = state.ProposalStatusRejected
		if err := ledger.SetProposal(p); err != nil {
			return fmt.Errorf("governance: persist proposal %d: %w", id, err)
		}
	}
	return nil
}

// ParamInstaller applies an accepted ParameterChange to the live param
// store. Declared separately from Ledger so the executor can pass a
// Staging directly without widening this package's interface further.
type ParamInstaller interface {
	ParamStoreSet(name string, value []byte) error
}

// TallyAndExecute tallies every candidate proposal whose voting period
// ends at height and, for each Passed proposal, installs its parameter
// change atomically before returning. Per spec.md §4.8, execution happens
// in the same end-of-block step as the tally; later transactions in the
// same block never observe the new value (execution is strictly
// end-of-block, after all of the block's transactions have run).
func TallyAndExecute(ledger Ledger, installer ParamInstaller, cfg Config, height int64, candidates []uint64, totalVotingPower *big.Int) error {
	for _, id := range candidates {
		p, err := ledger.GetProposal(id)
		if err != nil {
			return fmt.Errorf("governance: load proposal %d: %w", id, err)
		}
		if p == nil || p.Status != state.ProposalStatusVoting {
			continue
		}
		if p.VotingEndsAt != height {
			continue
		}
		outcome := Tally(p, cfg, totalVotingPower)
		p.Status = outcome
		observability.Chain().RecordProposalTally(string(outcome))
		if outcome == state.ProposalStatusPassed {
			if _, err := ParseAndValidate(p.Key, p.Value); err != nil {
				// Registry was mutated out from under this proposal between
				// submission and tally; fail safe by leaving the param
				// untouched but still marking the proposal executed, since
				// later proposals should not be blocked by a dead one.
				p.Status = state.ProposalStatusExecuted
				if err := ledger.SetProposal(p); err != nil {
					return fmt.Errorf("governance: persist proposal %d: %w", id, err)
				}
				continue
			}
			if err := installer.ParamStoreSet(p.Key, []byte(p.Value)); err != nil {
				return fmt.Errorf("governance: install param %q: %w", p.Key, err)
			}
			p.Status = state.ProposalStatusExecuted
		}
		if err := ledger.SetProposal(p); err != nil {
			return fmt.Errorf("governance: persist proposal %d: %w", id, err)
		}
	}
	return nil
}
