package state

import (
	"encoding/json"
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"

	"dytallix/core/types"
	"dytallix/storage/trie"
)

// Staging is a mutable view of the world-state trie, layered on the last
// committed root for the duration of exactly one block. It is never shared
// across goroutines: only the executor holds a Staging (spec.md §5).
type Staging struct {
	Snapshot
	store *Store
}

func (st *Staging) set(key []byte, value []byte) error {
	hashed := hashKey(key)
	// The trie only ever stores hashed keys; record the original key in the
	// raw auxiliary store so Iterate can recover it later (see
	// Snapshot.Iterate / preimageKey).
	if err := st.store.db.Put(preimageKey(hashed), key); err != nil {
		return fmt.Errorf("state: record preimage: %w", err)
	}
	return st.trie.Update(hashed, value)
}

func (st *Staging) setJSON(key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return st.set(key, raw)
}

// SetAccount persists acct at addr.
func (st *Staging) SetAccount(addr [20]byte, acct *types.Account) error {
	return st.setJSON(accountKey(addr), acct)
}

// ParamStoreSet implements native/params.StoreState for governance-mutated
// parameter writes.
func (st *Staging) ParamStoreSet(name string, value []byte) error {
	return st.set(parameterKey(name), value)
}

// SetValidator persists v at addr.
func (st *Staging) SetValidator(addr [20]byte, v *Validator) error {
	return st.setJSON(validatorKey(addr), v)
}

// SetDelegation persists d for the (delegator, validator) pair.
func (st *Staging) SetDelegation(delegator, validator [20]byte, d *Delegation) error {
	return st.setJSON(delegationKey(delegator, validator), d)
}

// SetStakingGlobal persists the singleton staking-global record.
func (st *Staging) SetStakingGlobal(g *StakingGlobal) error {
	return st.setJSON(prefixStakingGlobal, g)
}

// SetEmissionState persists the singleton emission-state record.
func (st *Staging) SetEmissionState(e *EmissionState) error {
	return st.setJSON(prefixEmissionState, e)
}

// SetProposal persists p.
func (st *Staging) SetProposal(p *Proposal) error {
	return st.setJSON(proposalKey(p.ID), p)
}

// SetVote persists v.
func (st *Staging) SetVote(v *Vote) error {
	return st.setJSON(voteKey(v.ProposalID, v.Voter), v)
}

// SetContractCode installs code at addr.
func (st *Staging) SetContractCode(addr [20]byte, code []byte) error {
	return st.set(contractCodeKey(addr), code)
}

// SetContractStorage writes a single contract storage slot.
func (st *Staging) SetContractStorage(addr [20]byte, slot, value []byte) error {
	return st.set(contractStateKey(addr, slot), value)
}

// SetReceipt persists the receipt for a delivered transaction.
func (st *Staging) SetReceipt(r *types.Receipt) error {
	return st.setJSON(receiptKey(r.TxHash), r)
}

// SetBlockHeader persists a committed header, keyed by height.
func (st *Staging) SetBlockHeader(h *types.BlockHeader) error {
	return st.setJSON(blockHeaderKey(h.Height), h)
}

// Commit writes all staged mutations to the backing trie database, updates
// the store's committed root, and returns the new state root. parentRoot is
// the root the block extended from (used by triedb for pruning/retention).
func (st *Staging) Commit(height uint64, parentRoot []byte) ([]byte, error) {
	newRoot, err := st.trie.Commit(gethcommon.BytesToHash(parentRoot), height)
	if err != nil {
		return nil, fmt.Errorf("state: commit: %w", err)
	}
	st.store.root = newRoot.Bytes()
	return st.store.Root(), nil
}

// Rollback discards this Staging without touching the store's committed
// root. Any Staging whose Commit is never called is implicitly a rollback:
// nothing was written to the backing triedb until Commit runs.
func (st *Staging) Rollback() {
	// Nothing to undo: Commit is the only point at which a Staging's trie
	// mutations are flushed to the backing triedb. The key preimages that
	// set records in the raw store are written immediately and are not
	// removed here.
}

// Checkpoint is an opaque snapshot of a Staging's in-memory trie, used to
// discard a single transaction's mutations (e.g. a failing message, or a
// trapped contract call) without discarding the whole block's Staging.
type Checkpoint struct {
	trie *trie.Trie
}

// Checkpoint captures the staging trie as it stands right now. Restore(c)
// later reverts every mutation made since, including preceding
// already-applied messages within the same transaction; the caller is
// responsible for taking the checkpoint at the point it wants to be able to
// return to (e.g. after the fee hold and nonce bump, so those survive a
// restore).
func (st *Staging) Checkpoint() (Checkpoint, error) {
	copied, err := st.trie.Copy()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("state: checkpoint: %w", err)
	}
	return Checkpoint{trie: copied}, nil
}

// Restore replaces the staging's current trie with the one captured in c,
// discarding every mutation (account balances, contract storage, governance
// state, ...) made since c was taken.
func (st *Staging) Restore(c Checkpoint) {
	st.trie = c.trie
}
