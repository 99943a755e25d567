package rpc

import (
	"sync"

	"dytallix/core/types"
)

// ChainView is the read side of whatever drives block production (the node
// main loop, not part of this package) hands the RPC server: the most
// recently committed header plus a running transaction count. It exists
// because core/state.Store itself tracks only the latest trie root, not a
// notion of "current height" — see core/state/keys.go, which has no
// chain-head key. Update is called once per committed block; every read
// handler reads through Latest.
type ChainView struct {
	mu           sync.RWMutex
	latest       *types.BlockHeader
	totalTxCount uint64
}

// NewChainView returns an empty view reporting height 0 until the first
// Update call.
func NewChainView() *ChainView {
	return &ChainView{}
}

// Update records a newly committed header and adds txCount to the running
// total transaction counter.
func (c *ChainView) Update(header *types.BlockHeader, txCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = header
	c.totalTxCount += uint64(txCount)
}

// Latest returns the most recently committed header, or nil if no block has
// been committed since the server started.
func (c *ChainView) Latest() *types.BlockHeader {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// TotalTransactions returns the running count of transactions delivered
// across every block this view has observed.
func (c *ChainView) TotalTransactions() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalTxCount
}
