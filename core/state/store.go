// Package state implements the single mutable world-state trie shared by
// every subsystem (spec.md §2/§3): accounts, validators, delegations,
// staking/emission globals, governance proposals and votes, contract code
// and storage, receipts, the governable-parameter registry, and committed
// block headers all live as prefixed entries in one Merkle-Patricia trie
// (storage/trie.Trie). Store exposes snapshot/stage/commit/rollback
// semantics so the mempool can read the last committed state while the
// executor stages a new block concurrently.
package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dytallix/core/types"
	"dytallix/storage"
	"dytallix/storage/trie"
)

// Store owns the backing database and the last committed trie root.
type Store struct {
	db   storage.Database
	root []byte
}

// NewStore opens (or initializes) a world-state store at the given root. A
// nil/empty root denotes the empty trie (genesis).
func NewStore(db storage.Database, root []byte) *Store {
	return &Store{db: db, root: root}
}

// Root returns the last committed state root.
func (s *Store) Root() []byte {
	return append([]byte(nil), s.root...)
}

// Snapshot opens a read-only view of the last committed state. Safe to
// share across goroutines (e.g. concurrent RPC reads and mempool admission)
// since nothing mutates it.
func (s *Store) Snapshot() (*Snapshot, error) {
	tr, err := trie.NewTrie(s.db, s.root)
	if err != nil {
		return nil, fmt.Errorf("state: open snapshot: %w", err)
	}
	return &Snapshot{trie: tr, db: s.db}, nil
}

// Begin opens a mutable staging view layered on top of the last committed
// state, for use by exactly one in-flight block.
func (s *Store) Begin() (*Staging, error) {
	tr, err := trie.NewTrie(s.db, s.root)
	if err != nil {
		return nil, fmt.Errorf("state: begin staging: %w", err)
	}
	return &Staging{Snapshot: Snapshot{trie: tr, db: s.db}, store: s}, nil
}

// hashKey matches storage/trie.Trie's documented expectation that keys
// passed to Get/Update are already hashed.
func hashKey(key []byte) []byte {
	return gethcrypto.Keccak256(key)
}

// Snapshot is a read-only view over a committed (or staged, via Staging)
// trie state.
type Snapshot struct {
	trie *trie.Trie
	db   storage.Database
}

func (sn *Snapshot) get(key []byte) ([]byte, error) {
	return sn.trie.Get(hashKey(key))
}

// preimageKey namespaces the raw auxiliary key/value store (storage.Database's
// Put/Get, distinct from the trie) so Iterate can recover each leaf's
// original prefixed key from its hashed trie key.
func preimageKey(hashed []byte) []byte {
	return append([]byte("preimage/"), hashed...)
}

// Iterate walks every record whose original (unhashed) key starts with
// prefix, in the underlying trie's NodeIterator path order (spec.md §4.3:
// "hash-path order rather than raw key-byte order" — stable across
// replicas, not lexicographic on the logical key). fn receives the
// original key (with prefix still attached) and the raw stored value.
func (sn *Snapshot) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return sn.trie.Iterate(func(hashedKey, value []byte) error {
		original, err := sn.db.Get(preimageKey(hashedKey))
		if err != nil {
			// No preimage recorded means this leaf predates preimage
			// tracking or belongs to a different keyspace entirely;
			// skip rather than fail the whole walk.
			return nil
		}
		if len(original) < len(prefix) {
			return nil
		}
		for i := range prefix {
			if original[i] != prefix[i] {
				return nil
			}
		}
		return fn(original, value)
	})
}

// GetAccount loads the account at addr, returning a zero-value account (not
// an error) if none exists yet.
func (sn *Snapshot) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := sn.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return types.NewAccount(), nil
	}
	var acct types.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	if acct.BalanceDGT == nil {
		acct.BalanceDGT = big.NewInt(0)
	}
	if acct.BalanceDRT == nil {
		acct.BalanceDRT = big.NewInt(0)
	}
	return &acct, nil
}

// ParamStoreGet implements native/params.StoreState for read access to the
// governable-parameter registry.
func (sn *Snapshot) ParamStoreGet(name string) ([]byte, bool, error) {
	raw, err := sn.get(parameterKey(name))
	if err != nil {
		return nil, false, err
	}
	return raw, len(raw) > 0, nil
}

// GetValidator loads a validator record, or nil if none exists.
func (sn *Snapshot) GetValidator(addr [20]byte) (*Validator, error) {
	raw, err := sn.get(validatorKey(addr))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v Validator
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("state: decode validator: %w", err)
	}
	return &v, nil
}

// GetDelegation loads a delegation record, or a zero-value one if none
// exists.
func (sn *Snapshot) GetDelegation(delegator, validator [20]byte) (*Delegation, error) {
	raw, err := sn.get(delegationKey(delegator, validator))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Delegation{Stake: big.NewInt(0), AccruedRewards: big.NewInt(0), LastRewardIndex: big.NewInt(0)}, nil
	}
	var d Delegation
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("state: decode delegation: %w", err)
	}
	return &d, nil
}

// DelegationsByDelegator returns every delegation the given delegator has
// made, across all validators. Used by governance to derive a voter's
// total staked voting power without requiring a separate index.
func (sn *Snapshot) DelegationsByDelegator(delegator [20]byte) ([]*Delegation, error) {
	prefix := append(append([]byte{}, prefixDelegation...), delegator[:]...)
	var out []*Delegation
	err := sn.Iterate(prefix, func(_, value []byte) error {
		var d Delegation
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("state: decode delegation: %w", err)
		}
		out = append(out, &d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state: iterate delegations: %w", err)
	}
	return out, nil
}

// GetStakingGlobal loads the singleton staking-global record.
func (sn *Snapshot) GetStakingGlobal() (*StakingGlobal, error) {
	raw, err := sn.get(prefixStakingGlobal)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &StakingGlobal{TotalStake: big.NewInt(0), RewardIndex: big.NewInt(0), PendingStakingEmission: big.NewInt(0)}, nil
	}
	var g StakingGlobal
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("state: decode staking global: %w", err)
	}
	return &g, nil
}

// GetEmissionState loads the singleton emission-state record.
func (sn *Snapshot) GetEmissionState() (*EmissionState, error) {
	raw, err := sn.get(prefixEmissionState)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &EmissionState{
			BlockRewards:         big.NewInt(0),
			StakingRewards:       big.NewInt(0),
			AIModuleIncentives:   big.NewInt(0),
			BridgeOperations:     big.NewInt(0),
		}, nil
	}
	var e EmissionState
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("state: decode emission state: %w", err)
	}
	return &e, nil
}

// GetProposal loads a governance proposal, or nil if none exists.
func (sn *Snapshot) GetProposal(id uint64) (*Proposal, error) {
	raw, err := sn.get(proposalKey(id))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("state: decode proposal: %w", err)
	}
	return &p, nil
}

// AllProposalIDs returns every proposal ID ever submitted, in no
// particular order. Used by the executor to gather end_block candidates
// for AdvanceDepositPeriods/TallyAndExecute without governance needing to
// know about the trie's iteration machinery.
func (sn *Snapshot) AllProposalIDs() ([]uint64, error) {
	var ids []uint64
	err := sn.Iterate(prefixProposal, func(_, value []byte) error {
		var p Proposal
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("state: decode proposal: %w", err)
		}
		ids = append(ids, p.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state: iterate proposals: %w", err)
	}
	return ids, nil
}

// GetVote loads a vote ballot, or nil if the voter has not voted.
func (sn *Snapshot) GetVote(proposalID uint64, voter [20]byte) (*Vote, error) {
	raw, err := sn.get(voteKey(proposalID, voter))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v Vote
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("state: decode vote: %w", err)
	}
	return &v, nil
}

// GetContractCode loads the deployed bytecode at addr, or nil if none.
func (sn *Snapshot) GetContractCode(addr [20]byte) ([]byte, error) {
	return sn.get(contractCodeKey(addr))
}

// GetContractStorage loads a single contract storage slot.
func (sn *Snapshot) GetContractStorage(addr [20]byte, slot []byte) ([]byte, error) {
	return sn.get(contractStateKey(addr, slot))
}

// GetReceipt loads a receipt by transaction hash, or nil if absent.
func (sn *Snapshot) GetReceipt(txHash []byte) (*types.Receipt, error) {
	raw, err := sn.get(receiptKey(txHash))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var r types.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("state: decode receipt: %w", err)
	}
	return &r, nil
}

// GetBlockHeader loads a committed header by height, or nil if absent.
func (sn *Snapshot) GetBlockHeader(height uint64) (*types.BlockHeader, error) {
	raw, err := sn.get(blockHeaderKey(height))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var h types.BlockHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("state: decode block header: %w", err)
	}
	return &h, nil
}

// Validator, Delegation, StakingGlobal, EmissionState, Proposal, and Vote
// mirror the records spec.md §3 defines; they live here (rather than in
// core/types) because they are never part of the signed transaction wire
// format, only of the state trie.

type Validator struct {
	ConsensusPubKey []byte   `json:"consensusPubKey"`
	CommissionBPS   uint32   `json:"commissionBps"`
	SelfStake       *big.Int `json:"selfStake"`
	TotalDelegated  *big.Int `json:"totalDelegated"`
	Jailed          bool     `json:"jailed"`
}

type Delegation struct {
	Stake           *big.Int `json:"stake"`
	LastRewardIndex *big.Int `json:"lastRewardIndex"`
	AccruedRewards  *big.Int `json:"accruedRewards"`
}

type StakingGlobal struct {
	TotalStake             *big.Int `json:"totalStake"`
	RewardIndex            *big.Int `json:"rewardIndex"`
	PendingStakingEmission *big.Int `json:"pendingStakingEmission"`
}

type EmissionState struct {
	LastAppliedHeight  uint64   `json:"lastAppliedHeight"`
	BlockRewards       *big.Int `json:"blockRewards"`
	StakingRewards     *big.Int `json:"stakingRewards"`
	AIModuleIncentives *big.Int `json:"aiModuleIncentives"`
	BridgeOperations   *big.Int `json:"bridgeOperations"`
}

type ProposalStatus string

const (
	ProposalStatusDeposit  ProposalStatus = "deposit_period"
	ProposalStatusVoting   ProposalStatus = "voting_period"
	ProposalStatusPassed   ProposalStatus = "passed"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExecuted ProposalStatus = "executed"
)

type Proposal struct {
	ID             uint64         `json:"id"`
	Key            string         `json:"key"`
	Value          string         `json:"value"`
	Proposer       [20]byte       `json:"proposer"`
	Deposit        *big.Int       `json:"deposit"`
	Status         ProposalStatus `json:"status"`
	SubmittedAt    int64          `json:"submittedAt"`
	DepositEndsAt  int64          `json:"depositEndsAt"`
	VotingEndsAt   int64          `json:"votingEndsAt"`
	YesVotes       *big.Int       `json:"yesVotes"`
	NoVotes        *big.Int       `json:"noVotes"`
	AbstainVotes   *big.Int       `json:"abstainVotes"`
	VetoVotes      *big.Int       `json:"vetoVotes"`
}

type Vote struct {
	ProposalID uint64   `json:"proposalId"`
	Voter      [20]byte `json:"voter"`
	Choice     string   `json:"choice"`
	Power      *big.Int `json:"power"`
}
