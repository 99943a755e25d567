package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dytallix/codec"
	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/crypto"
	"dytallix/mempool"
	"dytallix/oracle"
	"dytallix/storage"
)

const testChainID = "dytallix-rpc-test"

func newTestServer(t *testing.T) (*Server, *state.Store, *mempool.Mempool) {
	t.Helper()
	db := storage.NewMemDB()
	store := state.NewStore(db, nil)
	pool := mempool.New(mempool.Config{ChainID: testChainID, GasLimit: 1_000_000, GasPriceMin: big.NewInt(0)}, NewLiveStateView(store))
	cache := oracle.NewCache(db)
	chain := NewChainView()
	logger := slog.New(slog.NewTextHandler(bytesDiscard{}, nil))
	srv := NewServer(store, pool, cache, chain, logger, Config{})
	return srv, store, pool
}

type bytesDiscard struct{}

func (bytesDiscard) Write(p []byte) (int, error) { return len(p), nil }

func fundTestAccount(t *testing.T, store *state.Store, addr [20]byte, dgt int64) {
	t.Helper()
	staging, err := store.Begin()
	require.NoError(t, err)
	acct := types.NewAccount()
	acct.BalanceDGT = big.NewInt(dgt)
	require.NoError(t, staging.SetAccount(addr, acct))
	_, err = staging.Commit(0, nil)
	require.NoError(t, err)
}

func signedRawTx(t *testing.T, key *crypto.PrivateKey, nonce uint64, to [20]byte, amount int64) string {
	t.Helper()
	tx := &types.Transaction{
		ChainID:  testChainID,
		Nonce:    nonce,
		Messages: []types.Message{&types.TransferMessage{To: to, Denom: "DGT", Amount: big.NewInt(amount).Bytes()}},
		Fee:      big.NewInt(0).Bytes(),
		GasLimit: 100_000,
	}
	require.NoError(t, tx.Sign(key))
	w := codec.NewWriter()
	types.EncodeTransaction(w, tx)
	return hex.EncodeToString(w.Bytes())
}

func TestHandleBlockchainHeightBeforeAnyCommit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/blockchain/height", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(0), body["height"])
}

func TestHandleGetAccountReturnsBalances(t *testing.T) {
	srv, store, _ := newTestServer(t)
	key, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	var addr [20]byte
	copy(addr[:], key.Public().Address().Bytes())
	fundTestAccount(t, store, addr, 5000)

	req := httptest.NewRequest(http.MethodGet, "/account/"+key.Public().Address().String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "5000", body["balance_DGT"])
}

func TestHandleTxSubmitAdmitsAndReturnsHash(t *testing.T) {
	srv, store, pool := newTestServer(t)
	key, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	var sender [20]byte
	copy(sender[:], key.Public().Address().Bytes())
	fundTestAccount(t, store, sender, 1_000_000)

	var recipient [20]byte
	recipient[19] = 0x09
	rawHex := signedRawTx(t, key, 0, recipient, 42)

	body, _ := json.Marshal(submitRequest{Tx: rawHex})
	req := httptest.NewRequest(http.MethodPost, "/tx/submit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Accepted)
	require.NotEmpty(t, resp.TxHash)
	require.Equal(t, 1, pool.Len())
}

func TestHandleTxSubmitRejectsWrongChainID(t *testing.T) {
	srv, store, _ := newTestServer(t)
	key, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	var sender [20]byte
	copy(sender[:], key.Public().Address().Bytes())
	fundTestAccount(t, store, sender, 1_000_000)

	tx := &types.Transaction{
		ChainID:  "some-other-chain",
		Nonce:    0,
		Messages: []types.Message{&types.TransferMessage{To: sender, Denom: "DGT", Amount: big.NewInt(1).Bytes()}},
		Fee:      big.NewInt(0).Bytes(),
		GasLimit: 100_000,
	}
	require.NoError(t, tx.Sign(key))
	w := codec.NewWriter()
	types.EncodeTransaction(w, tx)

	body, _ := json.Marshal(submitRequest{Tx: hex.EncodeToString(w.Bytes())})
	req := httptest.NewRequest(http.MethodPost, "/tx/submit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "WrongChain", resp.ErrorKind)
}

func TestHandleGetTxReturns404ForUnknownHash(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tx/"+hex.EncodeToString([]byte{0x01, 0x02}), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointRequiresOperatorTokenWhenAuthEnabled(t *testing.T) {
	db := storage.NewMemDB()
	store := state.NewStore(db, nil)
	pool := mempool.New(mempool.Config{ChainID: testChainID, GasLimit: 1_000_000, GasPriceMin: big.NewInt(0)}, NewLiveStateView(store))
	cache := oracle.NewCache(db)
	chain := NewChainView()
	logger := slog.New(slog.NewTextHandler(bytesDiscard{}, nil))
	srv := NewServer(store, pool, cache, chain, logger, Config{Auth: AuthConfig{Enabled: true, HMACSecret: "test-secret"}})

	req := httptest.NewRequest(http.MethodPost, "/contract/deploy", bytes.NewReader([]byte(`{"tx":""}`)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRiskReturns404WhenUncached(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ai/risk/"+hex.EncodeToString([]byte{0xaa}), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
