package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/mempool"
	"dytallix/oracle"
	"dytallix/storage"
)

func TestBlockchainStreamBroadcastsCommittedHeader(t *testing.T) {
	db := storage.NewMemDB()
	store := state.NewStore(db, nil)
	pool := mempool.New(mempool.Config{ChainID: testChainID, GasLimit: 1_000_000, GasPriceMin: big.NewInt(0)}, NewLiveStateView(store))
	cache := oracle.NewCache(db)
	chain := NewChainView()
	logger := slog.New(slog.NewTextHandler(bytesDiscard{}, nil))
	srv := NewServer(store, pool, cache, chain, logger, Config{})

	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	wsURL := "ws" + httpSrv.URL[len("http"):] + "/blockchain/stream"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Give the server handler time to reach its subscribe() call after the
	// handshake completes, before this test's single NotifyCommit fires.
	time.Sleep(50 * time.Millisecond)

	header := &types.BlockHeader{
		Height:    7,
		Timestamp: 1_700_000_000,
		StateRoot: []byte{0x01, 0x02},
	}
	srv.NotifyCommit(header, 3)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg blockStreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, uint64(7), msg.Height)
	require.Equal(t, int64(1_700_000_000), msg.Timestamp)
}
