// core/genesis/spec_test.go
package genesis

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"dytallix/core/state"
	"dytallix/crypto"
	"dytallix/storage"
)

func TestLoadGenesisSpecAndBuildGenesis(t *testing.T) {
	addr1 := crypto.MustNewAddress(bytes.Repeat([]byte{0x01}, 20)).String()
	addr2 := crypto.MustNewAddress(bytes.Repeat([]byte{0x02}, 20)).String()

	spec := GenesisSpec{
		GenesisTime: "2024-01-01T00:00:00Z",
		ChainID:     "dytallix-1",
		Validators: []ValidatorSpec{
			{
				Address:         addr1,
				ConsensusPubKey: "aabbcc",
				CommissionBPS:   500,
				SelfStake:       "1000",
			},
		},
		Alloc: map[string]AllocEntry{
			addr1: {BalanceDGT: "1000", BalanceDRT: "50"},
			addr2: {BalanceDGT: "2000"},
		},
		Params: map[string]string{
			"gas_limit":         "21000",
			"max_gas_per_block": "10000000",
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	loaded, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("LoadGenesisSpec: %v", err)
	}

	if loaded.GenesisTime != spec.GenesisTime {
		t.Fatalf("genesisTime mismatch: got %q want %q", loaded.GenesisTime, spec.GenesisTime)
	}
	if loaded.ChainID != spec.ChainID {
		t.Fatalf("chainId mismatch: got %q want %q", loaded.ChainID, spec.ChainID)
	}
	if len(loaded.Validators) != len(spec.Validators) {
		t.Fatalf("unexpected validator count: got %d want %d", len(loaded.Validators), len(spec.Validators))
	}

	expectedTimestamp, err := time.Parse(time.RFC3339, spec.GenesisTime)
	if err != nil {
		t.Fatalf("parse genesisTime: %v", err)
	}
	if !loaded.GenesisTimestamp().Equal(expectedTimestamp) {
		t.Fatalf("genesis timestamp mismatch: got %v want %v", loaded.GenesisTimestamp(), expectedTimestamp)
	}

	db := storage.NewMemDB()
	defer db.Close()

	block, err := BuildGenesisFromSpec(loaded, db)
	if err != nil {
		t.Fatalf("BuildGenesisFromSpec: %v", err)
	}

	if block.Header.Height != 0 {
		t.Fatalf("expected height 0, got %d", block.Header.Height)
	}
	if block.Header.Timestamp != expectedTimestamp.Unix() {
		t.Fatalf("unexpected timestamp: got %d want %d", block.Header.Timestamp, expectedTimestamp.Unix())
	}
	if len(block.Header.PrevHash) != 0 {
		t.Fatalf("expected prev hash to be empty")
	}
	if bytes.Equal(block.Header.StateRoot, gethtypes.EmptyRootHash.Bytes()) {
		t.Fatalf("expected non-empty state root")
	}
	if !bytes.Equal(block.Header.TxRoot, gethtypes.EmptyRootHash.Bytes()) {
		t.Fatalf("unexpected tx root")
	}

	store := state.NewStore(db, block.Header.StateRoot)
	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}

	addr1Bytes, err := ParseBech32Account(addr1)
	if err != nil {
		t.Fatalf("parse addr1: %v", err)
	}
	account1, err := snap.GetAccount(addr1Bytes)
	if err != nil {
		t.Fatalf("get account1: %v", err)
	}
	if account1.BalanceDGT.String() != "1000" {
		t.Fatalf("unexpected account1 DGT balance: %s", account1.BalanceDGT.String())
	}
	if account1.BalanceDRT.String() != "50" {
		t.Fatalf("unexpected account1 DRT balance: %s", account1.BalanceDRT.String())
	}

	validator, err := snap.GetValidator(addr1Bytes)
	if err != nil {
		t.Fatalf("get validator: %v", err)
	}
	if validator == nil {
		t.Fatalf("expected genesis validator to be recorded")
	}
	if validator.CommissionBPS != 500 {
		t.Fatalf("unexpected commission: %d", validator.CommissionBPS)
	}
	if validator.SelfStake.String() != "1000" {
		t.Fatalf("unexpected self stake: %s", validator.SelfStake.String())
	}

	global, err := snap.GetStakingGlobal()
	if err != nil {
		t.Fatalf("get staking global: %v", err)
	}
	if global.TotalStake.String() != "1000" {
		t.Fatalf("unexpected total stake: %s", global.TotalStake.String())
	}

	gasLimit, ok, err := snap.ParamStoreGet("gas_limit")
	if err != nil {
		t.Fatalf("get gas_limit param: %v", err)
	}
	if !ok || string(gasLimit) != "21000" {
		t.Fatalf("unexpected gas_limit param: %q (ok=%t)", gasLimit, ok)
	}

	block2, err := BuildGenesisFromSpec(loaded, storage.NewMemDB())
	if err != nil {
		t.Fatalf("BuildGenesisFromSpec second call: %v", err)
	}
	if !bytes.Equal(block.Header.Hash(), block2.Header.Hash()) {
		t.Fatalf("expected deterministic genesis hash")
	}
}
