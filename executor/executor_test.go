package executor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/crypto"
	"dytallix/storage"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	db := storage.NewMemDB()
	return state.NewStore(db, nil)
}

func fundAccount(t *testing.T, staging *state.Staging, addr [20]byte, dgt int64) {
	t.Helper()
	acct := types.NewAccount()
	acct.BalanceDGT = big.NewInt(dgt)
	require.NoError(t, staging.SetAccount(addr, acct))
}

func newTestConfig(chainID string) Config {
	return Config{
		ChainID:               chainID,
		GasPriceMin:           big.NewInt(0),
		DefaultGasLimit:       1_000_000,
		DefaultMaxGasPerBlock: 10_000_000,
		BlockEmission:         big.NewInt(1_000_000),
	}
}

func signedTransferTx(t *testing.T, key *crypto.PrivateKey, chainID string, nonce uint64, to [20]byte, amount int64, fee, gasLimit uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		ChainID: chainID,
		Nonce:   nonce,
		Messages: []types.Message{
			&types.TransferMessage{To: to, Denom: "DGT", Amount: big.NewInt(amount).Bytes()},
		},
		Fee:      big.NewInt(int64(fee)).Bytes(),
		GasLimit: gasLimit,
	}
	require.NoError(t, tx.Sign(key))
	return tx
}

func addressOf(t *testing.T, key *crypto.PrivateKey) [20]byte {
	t.Helper()
	var out [20]byte
	copy(out[:], key.Public().Address().Bytes())
	return out
}

func TestDeliverTxTransferSuccessUpdatesBalancesAndNonce(t *testing.T) {
	store := newTestStore(t)
	senderKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, senderKey)
	var recipient [20]byte
	recipient[19] = 0x42

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 1_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	tx := signedTransferTx(t, senderKey, "dytallix-test", 0, recipient, 100, 10_000, 100_000)
	receipt, err := ex.DeliverTx(tx)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptSuccess, receipt.Status)

	require.NoError(t, ex.EndBlock())
	block, err := ex.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Header.Height)
	require.Len(t, block.Transactions, 1)

	snap, err := store.Snapshot()
	require.NoError(t, err)

	recipAcct, err := snap.GetAccount(recipient)
	require.NoError(t, err)
	require.Equal(t, int64(100), recipAcct.BalanceDGT.Int64())

	senderAcct, err := snap.GetAccount(sender)
	require.NoError(t, err)
	require.Equal(t, uint64(1), senderAcct.Nonce)
	require.True(t, senderAcct.BalanceDGT.Cmp(big.NewInt(1_000_000-100)) < 0, "sender should have paid a fee on top of the transfer")

	proposerAcct, err := snap.GetAccount(proposer)
	require.NoError(t, err)
	require.True(t, proposerAcct.BalanceDRT.Sign() > 0, "proposer should have been credited the block_rewards emission share")
}

func TestDeliverTxFailingMessageRollsBackEarlierMessageMutations(t *testing.T) {
	store := newTestStore(t)
	senderKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, senderKey)
	var recipientA, recipientB [20]byte
	recipientA[19] = 0x42
	recipientB[19] = 0x43

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 1_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	// First message succeeds (a plain DGT transfer); second uses an unknown
	// denom and is guaranteed to fail in native.transfer regardless of
	// balance. The whole transaction's mutations, not just the second
	// message's, must be rolled back.
	tx := &types.Transaction{
		ChainID: "dytallix-test",
		Nonce:   0,
		Messages: []types.Message{
			&types.TransferMessage{To: recipientA, Denom: "DGT", Amount: big.NewInt(100).Bytes()},
			&types.TransferMessage{To: recipientB, Denom: "XXX", Amount: big.NewInt(50).Bytes()},
		},
		Fee:      big.NewInt(10_000).Bytes(),
		GasLimit: 200_000,
	}
	require.NoError(t, tx.Sign(senderKey))

	receipt, err := ex.DeliverTx(tx)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptFailure, receipt.Status)
	require.Len(t, receipt.Results, 2)
	require.Empty(t, receipt.Results[0].Error)
	require.NotEmpty(t, receipt.Results[1].Error)

	require.NoError(t, ex.EndBlock())
	_, err = ex.Commit()
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)

	recipAcct, err := snap.GetAccount(recipientA)
	require.NoError(t, err)
	require.Equal(t, int64(0), recipAcct.BalanceDGT.Int64(), "first message's transfer must be rolled back along with the rest of the failed transaction")

	senderAcct, err := snap.GetAccount(sender)
	require.NoError(t, err)
	require.Equal(t, uint64(1), senderAcct.Nonce, "the nonce bump taken before dispatch must survive the rollback")
	require.True(t, senderAcct.BalanceDGT.Cmp(big.NewInt(1_000_000)) < 0, "the fee hold taken before dispatch must still be charged despite the rollback")
}

func TestDeliverTxRejectsAlgorithmSwitchAfterAccountPinned(t *testing.T) {
	store := newTestStore(t)
	legacyKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, legacyKey)
	var recipient [20]byte
	recipient[19] = 0x42

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 1_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	// First transaction pins the account to legacy_ecdsa.
	tx1 := signedTransferTx(t, legacyKey, "dytallix-test", 0, recipient, 100, 10_000, 100_000)
	receipt, err := ex.DeliverTx(tx1)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptSuccess, receipt.Status)
	require.NoError(t, ex.EndBlock())
	_, err = ex.Commit()
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	acct, err := snap.GetAccount(sender)
	require.NoError(t, err)
	require.Equal(t, string(crypto.AlgoLegacyECDSA), acct.PubKeyAlgo, "the account must be pinned to the algorithm of its first signature")

	// A forged dilithium-tagged signature claiming the same address cannot
	// exist in practice (addresses derive from the pubkey), but a pinned
	// account later declaring a different algorithm still must be rejected
	// rather than silently re-pinned. Simulate the "account already
	// declares a different algorithm" state directly and confirm a
	// still-legacy-signed transaction is rejected against it.
	staging, err := store.Begin()
	require.NoError(t, err)
	acct.PubKeyAlgo = string(crypto.AlgoDilithium)
	require.NoError(t, staging.SetAccount(sender, acct))
	_, err = staging.Commit(1, nil)
	require.NoError(t, err)

	ex2 := New(store, newTestConfig("dytallix-test"), nil)
	require.NoError(t, ex2.BeginBlock(2, 2000, proposer))
	tx2 := signedTransferTx(t, legacyKey, "dytallix-test", 1, recipient, 10, 10_000, 100_000)
	_, err = ex2.DeliverTx(tx2)
	require.Error(t, err, "a legacy-ECDSA signature must be rejected once the account has declared a different algorithm")
}

func TestDeliverTxTamperedSignatureRejected(t *testing.T) {
	store := newTestStore(t)
	senderKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, senderKey)
	var recipient [20]byte
	recipient[19] = 0x42

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 1_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	tx := signedTransferTx(t, senderKey, "dytallix-test", 0, recipient, 100, 10_000, 100_000)
	tx.Signature.Sig[0] ^= 0xFF

	receipt, err := ex.DeliverTx(tx)
	require.Error(t, err)
	require.Nil(t, receipt)
}

func TestDeliverTxRejectsWrongChainID(t *testing.T) {
	store := newTestStore(t)
	senderKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, senderKey)
	var recipient [20]byte
	recipient[19] = 0x42

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 1_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	tx := signedTransferTx(t, senderKey, "some-other-chain", 0, recipient, 100, 10_000, 100_000)
	receipt, err := ex.DeliverTx(tx)
	require.Error(t, err)
	require.Nil(t, receipt)
}

func TestDeliverTxBlockGasExhaustionStopsFurtherTxs(t *testing.T) {
	store := newTestStore(t)
	senderKey, err := crypto.GenerateKey(crypto.AlgoLegacyECDSA)
	require.NoError(t, err)
	sender := addressOf(t, senderKey)
	var recipient [20]byte
	recipient[19] = 0x42

	seed, err := store.Begin()
	require.NoError(t, err)
	fundAccount(t, seed, sender, 10_000_000)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	cfg := newTestConfig("dytallix-test")
	// Room for exactly one 100_000 gas_limit tx: the block check adds the
	// next tx's gas_limit to the gas already used, so tx2 cannot fit.
	cfg.DefaultMaxGasPerBlock = 100_000
	ex := New(store, cfg, nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))

	tx1 := signedTransferTx(t, senderKey, "dytallix-test", 0, recipient, 10, 10_000, 100_000)
	_, err = ex.DeliverTx(tx1)
	require.NoError(t, err)

	tx2 := signedTransferTx(t, senderKey, "dytallix-test", 1, recipient, 10, 10_000, 100_000)
	_, err = ex.DeliverTx(tx2)
	require.ErrorIs(t, err, ErrBlockGasExhausted)
}

func TestEndBlockAppliesEmissionAcrossAllFourPools(t *testing.T) {
	store := newTestStore(t)
	seed, err := store.Begin()
	require.NoError(t, err)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	ex := New(store, newTestConfig("dytallix-test"), nil)
	var proposer [20]byte
	proposer[19] = 0x01
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))
	require.NoError(t, ex.EndBlock())
	_, err = ex.Commit()
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	emission, err := snap.GetEmissionState()
	require.NoError(t, err)
	require.NotNil(t, emission)
	require.Equal(t, uint64(1), emission.LastAppliedHeight)

	total := new(big.Int)
	total.Add(total, emission.BlockRewards)
	total.Add(total, emission.StakingRewards)
	total.Add(total, emission.AIModuleIncentives)
	total.Add(total, emission.BridgeOperations)
	require.Equal(t, int64(1_000_000), total.Int64())
}

func TestSecondBlockChainsOffFirstHeaderHash(t *testing.T) {
	store := newTestStore(t)
	seed, err := store.Begin()
	require.NoError(t, err)
	_, err = seed.Commit(0, nil)
	require.NoError(t, err)

	cfg := newTestConfig("dytallix-test")
	var proposer [20]byte
	proposer[19] = 0x01

	ex := New(store, cfg, nil)
	require.NoError(t, ex.BeginBlock(1, 1000, proposer))
	require.NoError(t, ex.EndBlock())
	block1, err := ex.Commit()
	require.NoError(t, err)

	require.NoError(t, ex.BeginBlock(2, 2000, proposer))
	require.NoError(t, ex.EndBlock())
	block2, err := ex.Commit()
	require.NoError(t, err)

	require.Equal(t, block1.Header.Hash(), block2.Header.PrevHash)
}
