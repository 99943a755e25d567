package mempool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/crypto"
	"dytallix/storage"
)

const testChainID = "dytallix-test"

func newTestMempool(t *testing.T) (*Mempool, *state.Staging) {
	t.Helper()
	db := storage.NewMemDB()
	store := state.NewStore(db, nil)
	staging, err := store.Begin()
	require.NoError(t, err)
	cfg := Config{ChainID: testChainID, GasLimit: 100000, GasPriceMin: big.NewInt(1)}
	return New(cfg, staging), staging
}

func fundedAccount(t *testing.T, staging *state.Staging, addr [20]byte, balance int64) {
	t.Helper()
	acct := types.NewAccount()
	acct.BalanceDGT = big.NewInt(balance)
	require.NoError(t, staging.SetAccount(addr, acct))
}

func transferTx(t *testing.T, key *crypto.PrivateKey, nonce uint64, fee int64, amount int64) *types.Transaction {
	t.Helper()
	var to [20]byte
	to[19] = 0x99
	tx := &types.Transaction{
		ChainID:  testChainID,
		Nonce:    nonce,
		Messages: []types.Message{&types.TransferMessage{To: to, Denom: "DGT", Amount: big.NewInt(amount).Bytes()}},
		Fee:      big.NewInt(fee).Bytes(),
		GasLimit: 100,
	}
	require.NoError(t, tx.Sign(key))
	return tx
}

func addrOf(t *testing.T, key *crypto.PrivateKey) [20]byte {
	t.Helper()
	var out [20]byte
	copy(out[:], key.Public().Address().Bytes())
	return out
}

func TestAdmitAcceptsValidTransaction(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	tx := transferTx(t, key, 0, 500, 10)
	require.NoError(t, mp.Admit(tx))
	require.Equal(t, 1, mp.Len())
}

func TestAdmitRejectsWrongChain(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	tx := transferTx(t, key, 0, 500, 10)
	tx.ChainID = "other-chain"
	require.NoError(t, tx.Sign(key))
	err = mp.Admit(tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	require.Equal(t, WrongChain, admErr.Kind)
}

func TestAdmitRejectsNonceGap(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	tx := transferTx(t, key, 5, 500, 10)
	err = mp.Admit(tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	require.Equal(t, NonceGap, admErr.Kind)
}

func TestAdmitRejectsInsufficientFee(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	tx := transferTx(t, key, 0, 0, 10)
	err = mp.Admit(tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	require.Equal(t, InsufficientFee, admErr.Kind)
}

func TestAdmitRejectsInsufficientFunds(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 100)

	tx := transferTx(t, key, 0, 500, 10)
	err = mp.Admit(tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	require.Equal(t, InsufficientFunds, admErr.Kind)
}

func TestPendingOrdersByFeeDescThenArrival(t *testing.T) {
	mp, staging := newTestMempool(t)
	keyA, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	keyB, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, keyA), 1_000_000)
	fundedAccount(t, staging, addrOf(t, keyB), 1_000_000)

	low := transferTx(t, keyA, 0, 100, 10)
	high := transferTx(t, keyB, 0, 900, 10)
	require.NoError(t, mp.Admit(low))
	require.NoError(t, mp.Admit(high))

	pending := mp.Pending(0)
	require.Len(t, pending, 2)
	require.Equal(t, high.Hash(), pending[0].Hash())
	require.Equal(t, low.Hash(), pending[1].Hash())
}

func TestPendingRespectsPerSenderNonceOrder(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	first := transferTx(t, key, 0, 100, 10)
	second := transferTx(t, key, 1, 900, 10)
	require.NoError(t, mp.Admit(first))
	require.NoError(t, mp.Admit(second))

	pending := mp.Pending(0)
	require.Len(t, pending, 2)
	require.Equal(t, first.Hash(), pending[0].Hash())
	require.Equal(t, second.Hash(), pending[1].Hash())
}

func TestDropIncludedRemovesTransactions(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	fundedAccount(t, staging, addrOf(t, key), 1_000_000)

	tx := transferTx(t, key, 0, 500, 10)
	require.NoError(t, mp.Admit(tx))
	mp.DropIncluded([][]byte{tx.Hash()})
	require.Equal(t, 0, mp.Len())
}

func TestRevalidateDropsStaleNonce(t *testing.T) {
	mp, staging := newTestMempool(t)
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	require.NoError(t, err)
	addr := addrOf(t, key)
	fundedAccount(t, staging, addr, 1_000_000)

	first := transferTx(t, key, 0, 100, 10)
	second := transferTx(t, key, 1, 200, 10)
	require.NoError(t, mp.Admit(first))
	require.NoError(t, mp.Admit(second))

	acct, err := staging.GetAccount(addr)
	require.NoError(t, err)
	acct.Nonce = 1
	mp.Revalidate(addr, acct)

	require.Equal(t, 1, mp.Len())
	pending := mp.Pending(0)
	require.Len(t, pending, 1)
	require.Equal(t, second.Hash(), pending[0].Hash())
}
