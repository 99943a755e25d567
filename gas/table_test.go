package gas

import (
	"math/big"
	"testing"

	"dytallix/core/types"
	"dytallix/crypto"
)

func buildSignedTx(t *testing.T, algo crypto.Algo) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey(algo)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var to [20]byte
	to[0] = 0x09
	tx := &types.Transaction{
		ChainID:  "dytallix-test",
		Nonce:    1,
		Messages: []types.Message{&types.TransferMessage{To: to, Denom: "DGT", Amount: big.NewInt(10).Bytes()}},
		Fee:      big.NewInt(1000).Bytes(),
		GasLimit: 50000,
	}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestVerificationCostByAlgorithm(t *testing.T) {
	if VerificationCost(0x02) >= VerificationCost(0x01) {
		t.Fatalf("expected dilithium verification to cost more than legacy ecdsa")
	}
}

func TestNativeMessageCostKnownTags(t *testing.T) {
	if NativeMessageCost(types.MessageTagTransfer) == 0 {
		t.Fatalf("expected non-zero transfer cost")
	}
	if NativeMessageCost(0xFF) != 0 {
		t.Fatalf("expected zero cost for unknown tag")
	}
}

func TestUpfrontCostSumsComponents(t *testing.T) {
	tx := buildSignedTx(t, crypto.AlgoDilithium)
	expected := VerificationCost(tx.Signature.Algo) + SizeCost(len(tx.CanonicalBytes()))
	for _, msg := range tx.Messages {
		expected += NativeMessageCost(msg.Tag())
	}
	if got := UpfrontCost(tx); got != expected {
		t.Fatalf("UpfrontCost mismatch: got %d want %d", got, expected)
	}
}

func TestUpfrontCostDilithiumExceedsLegacy(t *testing.T) {
	dil := buildSignedTx(t, crypto.AlgoDilithium)
	legacy := buildSignedTx(t, crypto.AlgoLegacyECDSA)
	if UpfrontCost(dil) <= UpfrontCost(legacy) {
		t.Fatalf("expected dilithium tx upfront cost to exceed legacy tx cost")
	}
}

func TestUpfrontCostNilTransaction(t *testing.T) {
	if UpfrontCost(nil) != 0 {
		t.Fatalf("expected zero cost for nil transaction")
	}
}
