// core/genesis/loader.go
package genesis

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/storage"
)

// BuildGenesisFromSpec deterministically applies spec to a fresh world-state
// store and returns the height-0 block committing the result. Every
// iteration order below is explicitly sorted so two nodes loading the same
// spec always produce byte-identical state roots.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) (*types.Block, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}

	ts := spec.GenesisTimestamp()
	if ts.IsZero() {
		parsed, err := parseGenesisTime(spec.GenesisTime)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	store := state.NewStore(db, nil)
	staging, err := store.Begin()
	if err != nil {
		return nil, fmt.Errorf("open genesis staging: %w", err)
	}

	// 1) Allocations (addresses sorted).
	allocAddresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		allocAddresses = append(allocAddresses, addr)
	}
	sort.Strings(allocAddresses)
	for _, addrStr := range allocAddresses {
		addr, err := ParseBech32Account(addrStr)
		if err != nil {
			return nil, fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		entry := spec.Alloc[addrStr]
		dgt, _ := parseAmountString(entry.BalanceDGT)
		drt, _ := parseAmountString(entry.BalanceDRT)

		account := types.NewAccount()
		account.BalanceDGT = dgt
		account.BalanceDRT = drt
		if err := staging.SetAccount(addr, account); err != nil {
			return nil, fmt.Errorf("persist account %q: %w", addrStr, err)
		}
	}

	// 2) Validators (sorted by address) plus the aggregate staking global.
	validators := append([]ValidatorSpec(nil), spec.Validators...)
	sort.Slice(validators, func(i, j int) bool {
		return strings.Compare(validators[i].Address, validators[j].Address) < 0
	})
	totalStake := big.NewInt(0)
	for _, v := range validators {
		addr, err := ParseBech32Account(v.Address)
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", v.Address, err)
		}
		pubKeyHex := strings.TrimPrefix(strings.TrimSpace(v.ConsensusPubKey), "0x")
		pubKey, err := hex.DecodeString(pubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("validator %q consensusPubKey: %w", v.Address, err)
		}
		selfStake, _ := parseAmountString(v.SelfStake)

		record := &state.Validator{
			ConsensusPubKey: pubKey,
			CommissionBPS:   v.CommissionBPS,
			SelfStake:       new(big.Int).Set(selfStake),
			TotalDelegated:  big.NewInt(0),
		}
		if err := staging.SetValidator(addr, record); err != nil {
			return nil, fmt.Errorf("persist validator %q: %w", v.Address, err)
		}

		if selfStake.Sign() > 0 {
			delegation := &state.Delegation{
				Stake:           new(big.Int).Set(selfStake),
				LastRewardIndex: big.NewInt(0),
				AccruedRewards:  big.NewInt(0),
			}
			if err := staging.SetDelegation(addr, addr, delegation); err != nil {
				return nil, fmt.Errorf("persist self-delegation %q: %w", v.Address, err)
			}
		}
		totalStake.Add(totalStake, selfStake)
	}
	if err := staging.SetStakingGlobal(&state.StakingGlobal{
		TotalStake:             totalStake,
		RewardIndex:            big.NewInt(0),
		PendingStakingEmission: big.NewInt(0),
	}); err != nil {
		return nil, fmt.Errorf("persist staking global: %w", err)
	}
	if err := staging.SetEmissionState(&state.EmissionState{
		BlockRewards:       big.NewInt(0),
		StakingRewards:     big.NewInt(0),
		AIModuleIncentives: big.NewInt(0),
		BridgeOperations:   big.NewInt(0),
	}); err != nil {
		return nil, fmt.Errorf("persist emission state: %w", err)
	}

	// 3) Governable parameters (keys sorted).
	paramKeys := make([]string, 0, len(spec.Params))
	for key := range spec.Params {
		paramKeys = append(paramKeys, key)
	}
	sort.Strings(paramKeys)
	for _, key := range paramKeys {
		if err := staging.ParamStoreSet(key, []byte(spec.Params[key])); err != nil {
			return nil, fmt.Errorf("persist param %q: %w", key, err)
		}
	}

	stateRoot, err := staging.Commit(0, nil)
	if err != nil {
		return nil, fmt.Errorf("commit genesis state: %w", err)
	}

	header := &types.BlockHeader{
		Height:       0,
		Timestamp:    ts.Unix(),
		PrevHash:     []byte{},
		StateRoot:    stateRoot,
		TxRoot:       gethtypes.EmptyRootHash.Bytes(),
		ReceiptsRoot: gethtypes.EmptyRootHash.Bytes(),
		Proposer:     []byte{},
	}

	// The header itself is recorded as a second layer on top of stateRoot
	// (spec.md §3's block-header keyspace prefix), so the store's running
	// root advances past stateRoot. Consensus and RPC callers always use
	// header.StateRoot, never the store's bookkeeping root, as "the" state
	// root for a height.
	headerStaging, err := store.Begin()
	if err != nil {
		return nil, fmt.Errorf("open genesis header staging: %w", err)
	}
	if err := headerStaging.SetBlockHeader(header); err != nil {
		return nil, fmt.Errorf("persist genesis header: %w", err)
	}
	if _, err := headerStaging.Commit(0, stateRoot); err != nil {
		return nil, fmt.Errorf("commit genesis header: %w", err)
	}

	return types.NewBlock(header, nil), nil
}
