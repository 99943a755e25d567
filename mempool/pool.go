package mempool

import (
	"encoding/hex"
	"math/big"
	"sync"

	"dytallix/core/types"
)

// entry is one admitted, not-yet-included transaction.
type entry struct {
	tx      *types.Transaction
	sender  [20]byte
	hash    string
	fee     *big.Int
	arrival uint64
}

// Mempool holds the pending set for one node: admission against the last
// committed state, and an ordered-by-(fee desc, arrival asc) pending set
// with a per-sender nonce sub-ordering (spec.md §4.4).
type Mempool struct {
	mu       sync.Mutex
	cfg      Config
	view     StateView
	entries  map[string]*entry
	bySender map[[20]byte][]*entry // kept sorted by nonce asc
	seq      uint64
}

// New constructs an empty mempool admitting against view under cfg.
func New(cfg Config, view StateView) *Mempool {
	return &Mempool{
		cfg:      cfg,
		view:     view,
		entries:  make(map[string]*entry),
		bySender: make(map[[20]byte][]*entry),
	}
}

// SetParams updates the admission thresholds, e.g. after a governance
// parameter change takes effect at end_block.
func (m *Mempool) SetParams(gasLimit uint64, gasPriceMin *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.GasLimit = gasLimit
	m.cfg.GasPriceMin = gasPriceMin
}

func (m *Mempool) reservedSpend(sender [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, e := range m.bySender[sender] {
		total.Add(total, e.fee)
		for _, msg := range e.tx.Messages {
			total.Add(total, messageDGTSpend(msg))
		}
	}
	return total
}

// Admit runs the admission pipeline and, on success, inserts tx into the
// pending set. Returns an *AdmissionError on any pipeline failure.
func (m *Mempool) Admit(tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx == nil {
		return admissionErr(DecodeError, "nil transaction")
	}
	hash := hex.EncodeToString(tx.Hash())
	if _, exists := m.entries[hash]; exists {
		return nil
	}

	// Peek the sender without committing to it yet: Verify() is required
	// before we know which per-sender queue to check, so admission errors
	// for chain_id/gas/fee are still reported even though the signature
	// check runs first inside validate.
	probe, _, _ := tx.Verify()
	var senderArr [20]byte
	copy(senderArr[:], probe.Bytes())

	acct, err := m.view.GetAccount(senderArr)
	if err != nil {
		return admissionErr(DecodeError, "load sender account: %w", err)
	}
	pending := m.bySender[senderArr]
	expectedNonce := acct.Nonce + uint64(len(pending))
	reserved := m.reservedSpend(senderArr)

	senderArr, fee, err := validate(m.cfg, m.view, tx, reserved, expectedNonce)
	if err != nil {
		return err
	}

	m.seq++
	e := &entry{tx: tx, sender: senderArr, hash: hash, fee: fee, arrival: m.seq}
	m.entries[hash] = e
	m.bySender[senderArr] = append(m.bySender[senderArr], e)
	return nil
}

// Remove discards a single pending transaction by hash (external
// cancellation request).
func (m *Mempool) Remove(hash []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hex.EncodeToString(hash))
}

func (m *Mempool) removeLocked(hashHex string) {
	e, ok := m.entries[hashHex]
	if !ok {
		return
	}
	delete(m.entries, hashHex)
	list := m.bySender[e.sender]
	for i, cand := range list {
		if cand.hash == hashHex {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.bySender, e.sender)
	} else {
		m.bySender[e.sender] = list
	}
}

// DropIncluded removes every transaction hash included in a just-committed
// block.
func (m *Mempool) DropIncluded(hashes [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.removeLocked(hex.EncodeToString(h))
	}
}

// Revalidate re-checks a sender's pending queue against its post-commit
// account state, dropping any transaction whose nonce is now stale or that
// no longer forms a contiguous sequence from the account's current nonce.
func (m *Mempool) Revalidate(sender [20]byte, acct *types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.bySender[sender]
	if len(list) == 0 {
		return
	}
	kept := make([]*entry, 0, len(list))
	expected := acct.Nonce
	for _, e := range list {
		if e.tx.Nonce != expected {
			delete(m.entries, e.hash)
			continue
		}
		kept = append(kept, e)
		expected++
	}
	if len(kept) == 0 {
		delete(m.bySender, sender)
	} else {
		m.bySender[sender] = kept
	}
}

// Pending returns up to maxTxs transactions ordered by (fee desc, arrival
// asc) across senders, never returning a sender's transaction out of its
// own nonce order. maxTxs <= 0 means unbounded.
func (m *Mempool) Pending(maxTxs int) []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	type cursor struct {
		sender [20]byte
		idx    int
	}
	heads := make([]cursor, 0, len(m.bySender))
	for sender, list := range m.bySender {
		if len(list) > 0 {
			heads = append(heads, cursor{sender: sender, idx: 0})
		}
	}

	var out []*types.Transaction
	for len(heads) > 0 && (maxTxs <= 0 || len(out) < maxTxs) {
		best := 0
		for i := 1; i < len(heads); i++ {
			a := m.bySender[heads[i].sender][heads[i].idx]
			b := m.bySender[heads[best].sender][heads[best].idx]
			if a.fee.Cmp(b.fee) > 0 || (a.fee.Cmp(b.fee) == 0 && a.arrival < b.arrival) {
				best = i
			}
		}
		c := heads[best]
		e := m.bySender[c.sender][c.idx]
		out = append(out, e.tx)

		if c.idx+1 < len(m.bySender[c.sender]) {
			heads[best].idx++
		} else {
			heads = append(heads[:best], heads[best+1:]...)
		}
	}
	return out
}

// Len returns the total number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
