// Package executor implements the single-threaded block-processing loop
// spec.md §4.9 describes: begin_block opens staging and samples the
// governance voting-power snapshot; deliver_tx runs one transaction to
// completion against that staging; end_block applies emission, advances
// governance, and processes unbonding; commit writes staging to the trie
// and produces the committed block. Exactly one Executor instance ever
// holds an open Staging at a time (spec.md §5).
package executor

import (
	"fmt"
	"math/big"
	"strconv"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/gas"
	"dytallix/governance"
	"dytallix/native"
	"dytallix/native/common"
	"dytallix/observability"
	"dytallix/staking"
)

// Default basis-point emission split, used whenever a governance
// emission_schedule.* key has never been set (spec.md §9: 60/25/10/5).
const (
	defaultBlockRewardsBps       = 6000
	defaultStakingRewardsBps     = 2500
	defaultAIModuleIncentivesBps = 1000
	defaultBridgeOperationsBps   = 500

	basisPointsDenominator = 10_000
)

// aiModuleAddress and bridgeModuleAddress are fixed module-reserved
// accounts the ai_module_incentives/bridge_operations emission shares
// accrue to; neither pool names a specific payout recipient in spec.md §3,
// so the DRT is held here (a cosmos-sdk-style module account) rather than
// being minted with no owning account, which would violate the
// sum-of-balances-equals-supply invariant.
var (
	aiModuleAddress     = [20]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xa1}
	bridgeModuleAddress = [20]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xb1}
)

// Config bundles the node-local parameters the executor does not derive
// from the governable parameter store: the chain-id binding, the price
// floor used for admission, and the genesis-fixed per-block DRT emission
// total. gas_limit and max_gas_per_block are governable (read fresh from
// the param store every BeginBlock); these are the ones that are not.
type Config struct {
	ChainID               string
	GasPriceMin           *big.Int
	DefaultGasLimit       uint64
	DefaultMaxGasPerBlock uint64
	BlockEmission         *big.Int

	// Pauses lets an operator halt transfer/staking/governance/contract
	// message dispatch independently in an emergency; nil disables every
	// guard (native.Dispatcher.Dispatch consults it via common.Guard).
	Pauses common.PauseView
}

// Executor orchestrates exactly one in-flight block.
type Executor struct {
	store   *state.Store
	cfg     Config
	runtime native.ContractRuntime

	staging    *state.Staging
	height     uint64
	timestamp  int64
	proposer   [20]byte
	parentRoot []byte
	prevHash   []byte

	maxTxGasLimit    uint64
	maxGasPerBlock   uint64
	blockGasUsed     uint64
	govConfig        governance.Config
	totalVotingPower *big.Int

	txs           []*types.Transaction
	txHashes      [][]byte
	receiptHashes [][]byte
}

// New constructs an Executor bound to store and runtime. runtime may be
// nil if contract messages are never expected to execute (e.g. a test
// build with WASM disabled).
func New(store *state.Store, cfg Config, runtime native.ContractRuntime) *Executor {
	return &Executor{store: store, cfg: cfg, runtime: runtime}
}

func loadUintParam(staging *state.Staging, key string, fallback uint64) (uint64, error) {
	raw, ok, err := staging.ParamStoreGet(key)
	if err != nil {
		return 0, fmt.Errorf("executor: load param %s: %w", key, err)
	}
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("executor: parse param %s: %w", key, err)
	}
	return v, nil
}

// BeginBlock opens staging layered on the last committed root, samples the
// total staked voting power governance tallies at end_block will use
// (spec.md §4.9: sampled once per block, before this block's own
// delegate/undelegate transactions run), refreshes the governable
// gas_limit/max_gas_per_block/governance parameters, and resets the
// per-block gas counter.
func (ex *Executor) BeginBlock(height uint64, timestamp int64, proposer [20]byte) error {
	staging, err := ex.store.Begin()
	if err != nil {
		return fmt.Errorf("executor: begin staging: %w", err)
	}

	var prevHash []byte
	if height > 0 {
		prevHeader, err := staging.GetBlockHeader(height - 1)
		if err != nil {
			return fmt.Errorf("executor: load parent header: %w", err)
		}
		if prevHeader != nil {
			prevHash = prevHeader.Hash()
		}
	}

	global, err := staging.GetStakingGlobal()
	if err != nil {
		return fmt.Errorf("executor: load staking global: %w", err)
	}
	totalVotingPower := big.NewInt(0)
	if global != nil && global.TotalStake != nil {
		totalVotingPower = new(big.Int).Set(global.TotalStake)
	}

	maxTxGasLimit, err := loadUintParam(staging, "gas_limit", ex.cfg.DefaultGasLimit)
	if err != nil {
		return err
	}
	maxGasPerBlock, err := loadUintParam(staging, "max_gas_per_block", ex.cfg.DefaultMaxGasPerBlock)
	if err != nil {
		return err
	}
	govConfig, err := governance.LoadConfig(staging)
	if err != nil {
		return fmt.Errorf("executor: load governance config: %w", err)
	}

	ex.staging = staging
	ex.height = height
	ex.timestamp = timestamp
	ex.proposer = proposer
	ex.parentRoot = append([]byte{}, ex.store.Root()...)
	ex.prevHash = prevHash
	ex.maxTxGasLimit = maxTxGasLimit
	ex.maxGasPerBlock = maxGasPerBlock
	ex.blockGasUsed = 0
	ex.govConfig = govConfig
	ex.totalVotingPower = totalVotingPower
	ex.txs = nil
	ex.txHashes = nil
	ex.receiptHashes = nil
	return nil
}

// gasLedgerAdapter lets deliver_tx's fee hold and settlement debit/credit
// DGT through the same *state.Staging every other part of deliver_tx uses,
// without widening native.AccountLedger with gas-specific methods.
type gasLedgerAdapter struct {
	ledger native.AccountLedger
}

func (a gasLedgerAdapter) DebitDGT(addr [20]byte, amount *big.Int) error {
	acct, err := a.ledger.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct.BalanceDGT == nil || acct.BalanceDGT.Cmp(amount) < 0 {
		return fmt.Errorf("executor: insufficient DGT balance to hold gas fee")
	}
	acct.BalanceDGT = new(big.Int).Sub(acct.BalanceDGT, amount)
	return a.ledger.SetAccount(addr, acct)
}

func (a gasLedgerAdapter) CreditDGT(addr [20]byte, amount *big.Int) error {
	acct, err := a.ledger.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct.BalanceDGT == nil {
		acct.BalanceDGT = big.NewInt(0)
	}
	acct.BalanceDGT = new(big.Int).Add(acct.BalanceDGT, amount)
	return a.ledger.SetAccount(addr, acct)
}

// ErrBlockGasExhausted signals that admitting tx would exceed
// max_gas_per_block; the caller should stop delivering further
// transactions for this block but may still call EndBlock/Commit.
var ErrBlockGasExhausted = fmt.Errorf("executor: block gas limit reached")

// DeliverTx runs one transaction to completion: a defense-in-depth
// admission re-check, an upfront fee hold, native/WASM dispatch message by
// message, gas settlement, and receipt recording. Messages run in order; a
// failing message aborts the remainder of the transaction and rolls back
// every state mutation the transaction made, including earlier messages
// that already succeeded — only the fee hold and nonce bump taken before
// dispatch begins survive (spec.md §4.5/§4.6/§7: a transaction that fails
// pays gas for the attempt but leaves no other state mutation observable).
// A non-nil error here means the transaction could not even be attempted
// (stale staging, malformed signature, wrong chain, bad nonce, or block gas
// exhaustion); those never produce a receipt.
func (ex *Executor) DeliverTx(tx *types.Transaction) (*types.Receipt, error) {
	if ex.staging == nil {
		return nil, fmt.Errorf("executor: BeginBlock not called")
	}
	if tx.GasLimit > ex.maxTxGasLimit {
		return nil, fmt.Errorf("executor: gas_limit %d exceeds param %d", tx.GasLimit, ex.maxTxGasLimit)
	}
	if ex.blockGasUsed+tx.GasLimit > ex.maxGasPerBlock {
		return nil, ErrBlockGasExhausted
	}

	sender, sigAlgo, err := tx.Verify()
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	var senderAddr [20]byte
	copy(senderAddr[:], sender.Bytes())

	if tx.ChainID != ex.cfg.ChainID {
		return nil, fmt.Errorf("executor: tx chain_id %q != %q", tx.ChainID, ex.cfg.ChainID)
	}

	senderAcct, err := ex.staging.GetAccount(senderAddr)
	if err != nil {
		return nil, fmt.Errorf("executor: load sender account: %w", err)
	}
	if tx.Nonce != senderAcct.Nonce {
		return nil, fmt.Errorf("executor: nonce %d != expected %d", tx.Nonce, senderAcct.Nonce)
	}
	// An account pins to whichever algorithm it first signs with; a later
	// transaction claiming a different algorithm's pubkey tag for the same
	// address is rejected rather than silently re-deriving a new sender
	// identity for it (spec.md §4.2: the legacy path is accepted only when
	// the account declares it).
	if senderAcct.PubKeyAlgo != "" && senderAcct.PubKeyAlgo != string(sigAlgo) {
		return nil, fmt.Errorf("executor: account %s declared algorithm %q, signature uses %q", sender, senderAcct.PubKeyAlgo, sigAlgo)
	}

	fee := new(big.Int).SetBytes(tx.Fee)

	ledgerAdapter := gasLedgerAdapter{ledger: ex.staging}
	if err := ledgerAdapter.DebitDGT(senderAddr, fee); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	senderAcct, err = ex.staging.GetAccount(senderAddr)
	if err != nil {
		return nil, fmt.Errorf("executor: reload sender account: %w", err)
	}
	senderAcct.Nonce++
	if senderAcct.PubKeyAlgo == "" {
		senderAcct.PubKeyAlgo = string(sigAlgo)
		senderAcct.PubKeyBytes = append([]byte{}, tx.Signature.PubKey...)
	}
	if err := ex.staging.SetAccount(senderAddr, senderAcct); err != nil {
		return nil, fmt.Errorf("executor: persist nonce: %w", err)
	}

	checkpoint, err := ex.staging.Checkpoint()
	if err != nil {
		return nil, fmt.Errorf("executor: checkpoint staging: %w", err)
	}

	meter := gas.NewMeter(tx.GasLimit)
	dispatcher := &native.Dispatcher{GovernanceConfig: ex.govConfig, Runtime: ex.runtime, Height: int64(ex.height), Pauses: ex.cfg.Pauses}

	status := types.ReceiptSuccess
	results := make([]types.MessageResult, 0, len(tx.Messages))
	var logs []types.Event

	if err := meter.Charge(gas.VerificationCost(tx.Signature.Algo)); err != nil {
		status = types.ReceiptFailure
	} else if err := meter.Charge(gas.SizeCost(len(tx.CanonicalBytes()))); err != nil {
		status = types.ReceiptFailure
	}

	if status == types.ReceiptSuccess {
		for _, msg := range tx.Messages {
			events, dispatchErr := dispatcher.Dispatch(ex.staging, senderAddr, ex.proposer, msg, meter)
			result := types.MessageResult{Tag: msg.Tag(), Events: events}
			if dispatchErr != nil {
				result.Error = dispatchErr.Error()
				results = append(results, result)
				status = types.ReceiptFailure
				ex.staging.Restore(checkpoint)
				logs = nil
				break
			}
			results = append(results, result)
			logs = append(logs, events...)
		}
	}

	// The held fee is split pro rata by gas used: fee*used/gas_limit goes to
	// the proposer and the rest is refunded to the sender.
	feePaid := new(big.Int).Mul(fee, new(big.Int).SetUint64(meter.Used()))
	if tx.GasLimit > 0 {
		feePaid.Quo(feePaid, new(big.Int).SetUint64(tx.GasLimit))
	}
	if err := ledgerAdapter.CreditDGT(senderAddr, new(big.Int).Sub(fee, feePaid)); err != nil {
		return nil, fmt.Errorf("executor: settle gas: %w", err)
	}
	if err := ledgerAdapter.CreditDGT(ex.proposer, feePaid); err != nil {
		return nil, fmt.Errorf("executor: settle gas: %w", err)
	}
	ex.blockGasUsed += meter.Used()

	receipt := &types.Receipt{
		TxHash:  tx.Hash(),
		Status:  status,
		Height:  ex.height,
		GasUsed: meter.Used(),
		FeePaid: feePaid.Bytes(),
		Results: results,
		Logs:    logs,
	}
	if err := ex.staging.SetReceipt(receipt); err != nil {
		return nil, fmt.Errorf("executor: persist receipt: %w", err)
	}

	ex.txs = append(ex.txs, tx)
	ex.txHashes = append(ex.txHashes, tx.Hash())
	ex.receiptHashes = append(ex.receiptHashes, receiptHash(receipt))
	return receipt, nil
}

func creditDRT(ledger native.AccountLedger, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acct, err := ledger.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct.BalanceDRT == nil {
		acct.BalanceDRT = big.NewInt(0)
	}
	acct.BalanceDRT = new(big.Int).Add(acct.BalanceDRT, amount)
	return ledger.SetAccount(addr, acct)
}

func bpsShare(total *big.Int, bps uint64) *big.Int {
	v := new(big.Int).Mul(total, new(big.Int).SetUint64(bps))
	return v.Div(v, big.NewInt(basisPointsDenominator))
}

// applyEmission mints this block's DRT emission total and splits it across
// the four pools per the governable emission_schedule.* basis-point
// fields, falling back to the 60/25/10/5 defaults until governance sets
// them (spec.md §9).
func (ex *Executor) applyEmission() error {
	total := ex.cfg.BlockEmission
	if total == nil || total.Sign() == 0 {
		return nil
	}

	blockBps, err := loadUintParam(ex.staging, "emission_schedule.block_rewards", defaultBlockRewardsBps)
	if err != nil {
		return err
	}
	stakingBps, err := loadUintParam(ex.staging, "emission_schedule.staking_rewards", defaultStakingRewardsBps)
	if err != nil {
		return err
	}
	aiBps, err := loadUintParam(ex.staging, "emission_schedule.ai_module_incentives", defaultAIModuleIncentivesBps)
	if err != nil {
		return err
	}
	bridgeBps, err := loadUintParam(ex.staging, "emission_schedule.bridge_operations", defaultBridgeOperationsBps)
	if err != nil {
		return err
	}

	blockShare := bpsShare(total, blockBps)
	stakingShare := bpsShare(total, stakingBps)
	aiShare := bpsShare(total, aiBps)
	bridgeShare := bpsShare(total, bridgeBps)

	if err := creditDRT(ex.staging, ex.proposer, blockShare); err != nil {
		return fmt.Errorf("executor: credit proposer block reward: %w", err)
	}
	if err := staking.ApplyExternalEmission(ex.staging, stakingShare); err != nil {
		return fmt.Errorf("executor: apply staking emission: %w", err)
	}
	if err := creditDRT(ex.staging, aiModuleAddress, aiShare); err != nil {
		return fmt.Errorf("executor: credit ai module pool: %w", err)
	}
	if err := creditDRT(ex.staging, bridgeModuleAddress, bridgeShare); err != nil {
		return fmt.Errorf("executor: credit bridge module pool: %w", err)
	}

	observability.Chain().RecordEmission("block_rewards", blockShare)
	observability.Chain().RecordEmission("staking_rewards", stakingShare)
	observability.Chain().RecordEmission("ai_module_incentives", aiShare)
	observability.Chain().RecordEmission("bridge_operations", bridgeShare)

	emissionState, err := ex.staging.GetEmissionState()
	if err != nil {
		return fmt.Errorf("executor: load emission state: %w", err)
	}
	if emissionState == nil {
		emissionState = &state.EmissionState{
			BlockRewards:       big.NewInt(0),
			StakingRewards:     big.NewInt(0),
			AIModuleIncentives: big.NewInt(0),
			BridgeOperations:   big.NewInt(0),
		}
	}
	emissionState.BlockRewards = new(big.Int).Add(emissionState.BlockRewards, blockShare)
	emissionState.StakingRewards = new(big.Int).Add(emissionState.StakingRewards, stakingShare)
	emissionState.AIModuleIncentives = new(big.Int).Add(emissionState.AIModuleIncentives, aiShare)
	emissionState.BridgeOperations = new(big.Int).Add(emissionState.BridgeOperations, bridgeShare)
	emissionState.LastAppliedHeight = ex.height
	return ex.staging.SetEmissionState(emissionState)
}

// EndBlock applies this height's emission, advances the governance
// lifecycle (promotion into the voting period already happened inline
// during deliver_tx's submit_proposal/deposit messages; this step first
// rejects proposals whose deposit period has expired, then tallies and
// executes proposals whose voting period ends at this height), and runs
// the (currently no-op) unbonding queue, in that order (spec.md §4.9/§5).
func (ex *Executor) EndBlock() error {
	if ex.staging == nil {
		return fmt.Errorf("executor: BeginBlock not called")
	}
	if err := ex.applyEmission(); err != nil {
		return err
	}

	candidates, err := ex.staging.AllProposalIDs()
	if err != nil {
		return fmt.Errorf("executor: enumerate proposals: %w", err)
	}
	if err := governance.AdvanceDepositPeriods(ex.staging, ex.timestampAsHeight(), candidates); err != nil {
		return fmt.Errorf("executor: advance deposit periods: %w", err)
	}
	if err := governance.TallyAndExecute(ex.staging, ex.staging, ex.govConfig, ex.timestampAsHeight(), candidates, ex.totalVotingPower); err != nil {
		return fmt.Errorf("executor: tally governance: %w", err)
	}

	if err := staking.ProcessUnbonding(ex.staging, ex.height); err != nil {
		return fmt.Errorf("executor: process unbonding: %w", err)
	}
	return nil
}

// timestampAsHeight returns the block height as the int64 "height" unit
// governance's deposit/voting windows are measured in; both are block
// counts, never wall-clock time, so this is simply a type conversion.
func (ex *Executor) timestampAsHeight() int64 {
	return int64(ex.height)
}

func receiptHash(r *types.Receipt) []byte {
	w := []byte(string(r.Status))
	w = append(w, r.TxHash...)
	for _, res := range r.Results {
		w = append(w, res.Tag)
		w = append(w, []byte(res.Error)...)
	}
	return hashBytes(w)
}

// Commit writes this block's staging to the trie, layers the committed
// header on top (spec.md §3's two-phase pattern: state first, then the
// header that commits to its resulting state_root), and returns the
// assembled block. After Commit, BeginBlock must be called again before
// the next DeliverTx.
func (ex *Executor) Commit() (*types.Block, error) {
	if ex.staging == nil {
		return nil, fmt.Errorf("executor: BeginBlock not called")
	}
	observability.Chain().RecordBlockGasUsed(ex.blockGasUsed)
	stateRoot, err := ex.staging.Commit(ex.height, ex.parentRoot)
	if err != nil {
		return nil, fmt.Errorf("executor: commit state: %w", err)
	}

	header := &types.BlockHeader{
		Height:       ex.height,
		Timestamp:    ex.timestamp,
		PrevHash:     ex.prevHash,
		StateRoot:    stateRoot,
		TxRoot:       types.MerkleRoot(ex.txHashes),
		ReceiptsRoot: types.MerkleRoot(ex.receiptHashes),
		Proposer:     append([]byte{}, ex.proposer[:]...),
	}

	headerStaging, err := ex.store.Begin()
	if err != nil {
		return nil, fmt.Errorf("executor: begin header staging: %w", err)
	}
	if err := headerStaging.SetBlockHeader(header); err != nil {
		return nil, fmt.Errorf("executor: persist header: %w", err)
	}
	if _, err := headerStaging.Commit(ex.height, stateRoot); err != nil {
		return nil, fmt.Errorf("executor: commit header: %w", err)
	}

	block := types.NewBlock(header, ex.txs)
	ex.staging = nil
	return block, nil
}
