// Package native dispatches decoded transaction messages to their handler:
// transfer moves balances directly; delegate/undelegate/claim_rewards and
// submit_proposal/vote/deposit call into package staking / package
// governance; contract_deploy/contract_call hand off to a ContractRuntime
// (package wasmvm). Dispatch is by message tag; unknown tags fail with
// types.ErrUnknownMessage (spec.md §4.5).
package native

import (
	"fmt"
	"math/big"
	"strconv"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/gas"
	"dytallix/governance"
	"dytallix/native/common"
	"dytallix/observability"
	"dytallix/staking"
)

// AccountLedger is the account-balance subset of core/state.Staging that
// transfer and contract messages touch directly.
type AccountLedger interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	SetAccount(addr [20]byte, acct *types.Account) error
}

// ContractLedger is the contract code/storage subset contract_deploy and
// contract_call need; satisfied by core/state.Staging and consumed by the
// ContractRuntime this package hands off to.
type ContractLedger interface {
	GetContractCode(addr [20]byte) ([]byte, error)
	SetContractCode(addr [20]byte, code []byte) error
	GetContractStorage(addr [20]byte, slot []byte) ([]byte, error)
	SetContractStorage(addr [20]byte, slot, value []byte) error
}

// Ledger is the full set of state access dispatch needs across every
// message kind.
type Ledger interface {
	AccountLedger
	ContractLedger
	staking.Ledger
	governance.Ledger
	DelegationsByDelegator(delegator [20]byte) ([]*state.Delegation, error)
}

// ContractRuntime executes WASM contract code. Package wasmvm's engine
// implements this; it is declared here (rather than imported) so native
// does not depend on wasmvm, keeping the dependency direction the executor
// wires at runtime.
type ContractRuntime interface {
	Deploy(ledger ContractLedger, caller [20]byte, code, args []byte, meter *gas.Meter) (contract [20]byte, events []types.Event, err error)
	Call(ledger ContractLedger, caller, contract [20]byte, args []byte, meter *gas.Meter) (returnData []byte, events []types.Event, err error)
}

// Dispatcher binds one block's shared dependencies: the active governance
// config (loaded once at begin_block), the contract runtime, and the
// current module pause state. Pauses is optional (nil disables every
// guard, matching common.Guard's nil-safe behavior) so a node running
// without operator-pause configuration never rejects a message on that
// account.
type Dispatcher struct {
	GovernanceConfig governance.Config
	Runtime          ContractRuntime
	Height           int64
	Pauses           common.PauseView
}

func amountFromBytes(raw []byte) *big.Int {
	if len(raw) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(raw)
}

// moduleForMessage maps a message tag to the pause-guard module name an
// operator would use to halt it in an emergency; transfer, staking,
// governance, and contract execution can each be paused independently.
func moduleForMessage(msg types.Message) string {
	switch msg.(type) {
	case *types.TransferMessage:
		return "transfer"
	case *types.DelegateMessage, *types.UndelegateMessage, *types.ClaimRewardsMessage:
		return "staking"
	case *types.SubmitProposalMessage, *types.VoteMessage, *types.DepositMessage:
		return "governance"
	case *types.ContractDeployMessage, *types.ContractCallMessage:
		return "contract"
	default:
		return ""
	}
}

// Dispatch routes msg to its handler, charging gas.NativeMessageCost(tag)
// from meter before running it (contract messages also meter their WASM
// execution on top of this base cost). Returns the events the message
// produced; a non-nil error means the enclosing transaction fails
// (spec.md §4.5: failed transactions roll back all of their mutations).
func (d *Dispatcher) Dispatch(ledger Ledger, sender, proposer [20]byte, msg types.Message, meter *gas.Meter) ([]types.Event, error) {
	if err := common.Guard(d.Pauses, moduleForMessage(msg)); err != nil {
		return nil, err
	}
	if err := meter.Charge(gas.NativeMessageCost(msg.Tag())); err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *types.TransferMessage:
		return nil, d.transfer(ledger, sender, m)
	case *types.DelegateMessage:
		return nil, staking.Delegate(ledger, sender, m.Validator, amountFromBytes(m.Amount))
	case *types.UndelegateMessage:
		return nil, staking.Undelegate(ledger, sender, m.Validator, amountFromBytes(m.Amount))
	case *types.ClaimRewardsMessage:
		_, err := staking.ClaimRewards(ledger, sender, m.Validator)
		return nil, err
	case *types.SubmitProposalMessage:
		return nil, d.submitProposal(ledger, sender, m)
	case *types.VoteMessage:
		return nil, d.castVote(ledger, sender, m)
	case *types.DepositMessage:
		_, err := governance.AddDeposit(ledger, d.GovernanceConfig, m.ProposalID, amountFromBytes(m.Amount), d.Height)
		return nil, err
	case *types.ContractDeployMessage:
		return d.deployContract(ledger, sender, m, meter)
	case *types.ContractCallMessage:
		return d.callContract(ledger, sender, m, meter)
	default:
		return nil, &types.ErrUnknownMessage{Tag: msg.Tag()}
	}
}

func (d *Dispatcher) transfer(ledger AccountLedger, sender [20]byte, m *types.TransferMessage) error {
	amount := amountFromBytes(m.Amount)
	if amount.Sign() <= 0 {
		return fmt.Errorf("native: transfer amount must be positive")
	}
	senderAcct, err := ledger.GetAccount(sender)
	if err != nil {
		return fmt.Errorf("native: load sender account: %w", err)
	}
	var senderBalance **big.Int
	var recipientBalance **big.Int

	recipientAcct, err := ledger.GetAccount(m.To)
	if err != nil {
		return fmt.Errorf("native: load recipient account: %w", err)
	}

	switch m.Denom {
	case "DGT":
		senderBalance = &senderAcct.BalanceDGT
		recipientBalance = &recipientAcct.BalanceDGT
	case "DRT":
		senderBalance = &senderAcct.BalanceDRT
		recipientBalance = &recipientAcct.BalanceDRT
	default:
		return fmt.Errorf("native: unknown denom %q", m.Denom)
	}
	if *senderBalance == nil || (*senderBalance).Cmp(amount) < 0 {
		return fmt.Errorf("native: insufficient %s balance", m.Denom)
	}
	*senderBalance = new(big.Int).Sub(*senderBalance, amount)
	if *recipientBalance == nil {
		*recipientBalance = big.NewInt(0)
	}
	*recipientBalance = new(big.Int).Add(*recipientBalance, amount)

	if err := ledger.SetAccount(sender, senderAcct); err != nil {
		return fmt.Errorf("native: persist sender account: %w", err)
	}
	if err := ledger.SetAccount(m.To, recipientAcct); err != nil {
		return fmt.Errorf("native: persist recipient account: %w", err)
	}
	observability.Events().RecordTransfer(m.Denom)
	return nil
}

const proposalSequenceKey = "gov/proposal_seq"

func nextProposalID(ledger governance.Ledger) (uint64, error) {
	raw, ok, err := ledger.ParamStoreGet(proposalSequenceKey)
	if err != nil {
		return 0, fmt.Errorf("native: load proposal sequence: %w", err)
	}
	var id uint64
	if ok {
		id, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("native: parse proposal sequence: %w", err)
		}
	}
	id++
	if err := ledger.ParamStoreSet(proposalSequenceKey, []byte(strconv.FormatUint(id, 10))); err != nil {
		return 0, fmt.Errorf("native: persist proposal sequence: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) submitProposal(ledger Ledger, sender [20]byte, m *types.SubmitProposalMessage) error {
	id, err := nextProposalID(ledger)
	if err != nil {
		return err
	}
	_, err = governance.SubmitProposal(ledger, d.GovernanceConfig, sender, m.Key, m.Value, amountFromBytes(m.Deposit), id, d.Height)
	return err
}

func voteChoiceFromWire(choice string) governance.VoteChoice {
	switch choice {
	case "yes":
		return governance.VoteYes
	case "no":
		return governance.VoteNo
	case "abstain":
		return governance.VoteAbstain
	case "no_with_veto":
		return governance.VoteVeto
	default:
		return governance.VoteChoice(choice)
	}
}

// votingPower sums every delegation the voter has made, across validators:
// governance voting power in this build is simply total staked DGT, since
// there is no separate vote-escrow or liquid-token-weighted ballot concept
// in scope.
func votingPower(ledger Ledger, voter [20]byte) (*big.Int, error) {
	delegations, err := ledger.DelegationsByDelegator(voter)
	if err != nil {
		return nil, fmt.Errorf("native: load delegations: %w", err)
	}
	power := big.NewInt(0)
	for _, d := range delegations {
		if d.Stake != nil {
			power = new(big.Int).Add(power, d.Stake)
		}
	}
	return power, nil
}

func (d *Dispatcher) castVote(ledger Ledger, sender [20]byte, m *types.VoteMessage) error {
	power, err := votingPower(ledger, sender)
	if err != nil {
		return err
	}
	return governance.CastVote(ledger, m.ProposalID, sender, voteChoiceFromWire(m.Choice), power)
}

func (d *Dispatcher) deployContract(ledger ContractLedger, sender [20]byte, m *types.ContractDeployMessage, meter *gas.Meter) ([]types.Event, error) {
	if d.Runtime == nil {
		return nil, fmt.Errorf("native: contract runtime not configured")
	}
	_, events, err := d.Runtime.Deploy(ledger, sender, m.Code, m.Args, meter)
	return events, err
}

func (d *Dispatcher) callContract(ledger ContractLedger, sender [20]byte, m *types.ContractCallMessage, meter *gas.Meter) ([]types.Event, error) {
	if d.Runtime == nil {
		return nil, fmt.Errorf("native: contract runtime not configured")
	}
	_, events, err := d.Runtime.Call(ledger, sender, m.To, m.Args, meter)
	return events, err
}
