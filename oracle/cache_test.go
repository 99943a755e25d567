package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dytallix/storage"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	cache := NewCache(storage.NewMemDB())
	txHash := []byte{0x01, 0x02, 0x03}

	require.NoError(t, cache.Put(RiskScore{TxHash: txHash, Score: 87, Confidence: 0.92, FetchedAt: 1_700_000_000}))

	got, ok, err := cache.Get(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(87), got.Score)
	require.InDelta(t, 0.92, got.Confidence, 1e-9)
}

func TestGetMissReturnsNotOK(t *testing.T) {
	cache := NewCache(storage.NewMemDB())
	got, ok, err := cache.Get([]byte{0xff})
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestPutRejectsDuplicateTxHash(t *testing.T) {
	cache := NewCache(storage.NewMemDB())
	txHash := []byte{0x09}

	require.NoError(t, cache.Put(RiskScore{TxHash: txHash, Score: 10, Confidence: 0.5}))
	err := cache.Put(RiskScore{TxHash: txHash, Score: 99, Confidence: 0.9})
	require.ErrorIs(t, err, ErrAlreadyScored)
}

func TestPutRejectsEmptyTxHashAndOutOfRangeConfidence(t *testing.T) {
	cache := NewCache(storage.NewMemDB())

	err := cache.Put(RiskScore{TxHash: nil, Score: 1, Confidence: 0.5})
	require.Error(t, err)

	err = cache.Put(RiskScore{TxHash: []byte{0x01}, Score: 1, Confidence: 1.5})
	require.Error(t, err)
}
