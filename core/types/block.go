package types

import (
	"crypto/sha256"

	"dytallix/codec"
)

// BlockHeader commits to everything the executor produced for a height:
// the parent link, the post-transition state root, a merkle root over the
// block's transactions, a merkle root over its receipts, and the proposer
// address supplied by the external consensus driver.
type BlockHeader struct {
	Height       uint64
	Timestamp    int64
	PrevHash     []byte
	StateRoot    []byte
	TxRoot       []byte
	ReceiptsRoot []byte
	Proposer     []byte
}

// Block pairs a header with the ordered transactions it commits to.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
}

// NewBlock creates a new block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the canonical hash identifying this header.
func (h *BlockHeader) Hash() []byte {
	w := codec.NewWriter()
	w.WriteUint64(h.Height)
	w.WriteUint64(uint64(h.Timestamp))
	w.WriteBytes(h.PrevHash)
	w.WriteBytes(h.StateRoot)
	w.WriteBytes(h.TxRoot)
	w.WriteBytes(h.ReceiptsRoot)
	w.WriteBytes(h.Proposer)
	sum := sha256.Sum256(w.Bytes())
	return sum[:]
}
