package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dytallix/core/types"
	"dytallix/storage"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	db := storage.NewMemDB()
	return NewStore(db, nil)
}

func TestAccountSetGetRoundTrip(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var addr [20]byte
	addr[0] = 0x01
	acct := types.NewAccount()
	acct.Nonce = 3
	acct.BalanceDGT = big.NewInt(1000)
	acct.BalanceDRT = big.NewInt(5)

	require.NoError(t, staging.SetAccount(addr, acct))

	got, err := staging.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, acct.Nonce, got.Nonce)
	require.Equal(t, 0, acct.BalanceDGT.Cmp(got.BalanceDGT))
	require.Equal(t, 0, acct.BalanceDRT.Cmp(got.BalanceDRT))
}

func TestAccountMissingReturnsZeroValue(t *testing.T) {
	store := newMemStore(t)
	snap, err := store.Snapshot()
	require.NoError(t, err)

	var addr [20]byte
	addr[0] = 0xFF
	acct, err := snap.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(0), acct.Nonce)
	require.Equal(t, 0, big.NewInt(0).Cmp(acct.BalanceDGT))
}

func TestCommitPersistsAcrossSnapshots(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var addr [20]byte
	addr[0] = 0x02
	acct := types.NewAccount()
	acct.Nonce = 7
	require.NoError(t, staging.SetAccount(addr, acct))

	newRoot, err := staging.Commit(1, nil)
	require.NoError(t, err)
	require.NotEmpty(t, newRoot)
	require.Equal(t, newRoot, store.Root())

	snap, err := store.Snapshot()
	require.NoError(t, err)
	got, err := snap.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.Nonce)
}

func TestValidatorDelegationRoundTrip(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var valAddr, delAddr [20]byte
	valAddr[0] = 0x10
	delAddr[0] = 0x20

	v := &Validator{
		ConsensusPubKey: []byte{0x01, 0x02},
		CommissionBPS:   500,
		SelfStake:       big.NewInt(100),
		TotalDelegated:  big.NewInt(0),
	}
	require.NoError(t, staging.SetValidator(valAddr, v))

	gotV, err := staging.GetValidator(valAddr)
	require.NoError(t, err)
	require.Equal(t, v.CommissionBPS, gotV.CommissionBPS)
	require.Equal(t, 0, v.SelfStake.Cmp(gotV.SelfStake))

	d := &Delegation{
		Stake:           big.NewInt(50),
		LastRewardIndex: big.NewInt(0),
		AccruedRewards:  big.NewInt(0),
	}
	require.NoError(t, staging.SetDelegation(delAddr, valAddr, d))

	gotD, err := staging.GetDelegation(delAddr, valAddr)
	require.NoError(t, err)
	require.Equal(t, 0, d.Stake.Cmp(gotD.Stake))
}

func TestMissingValidatorReturnsNil(t *testing.T) {
	store := newMemStore(t)
	snap, err := store.Snapshot()
	require.NoError(t, err)

	var addr [20]byte
	v, err := snap.GetValidator(addr)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestIterateFiltersByPrefix(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var a1, a2 [20]byte
	a1[0], a2[0] = 0x01, 0x02
	require.NoError(t, staging.SetAccount(a1, types.NewAccount()))
	require.NoError(t, staging.SetAccount(a2, types.NewAccount()))

	var val [20]byte
	val[0] = 0x33
	require.NoError(t, staging.SetValidator(val, &Validator{
		SelfStake:      big.NewInt(1),
		TotalDelegated: big.NewInt(0),
	}))

	seen := map[string]bool{}
	require.NoError(t, staging.Iterate(prefixAccount, func(key, value []byte) error {
		seen[string(key)] = true
		return nil
	}))

	require.Len(t, seen, 2)
	require.True(t, seen[string(accountKey(a1))])
	require.True(t, seen[string(accountKey(a2))])
	require.False(t, seen[string(validatorKey(val))])
}

func TestProposalAndVoteRoundTrip(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var proposer, voter [20]byte
	proposer[0] = 0x01
	voter[0] = 0x02

	p := &Proposal{
		ID:           1,
		Key:          "gov.threshold_bps",
		Value:        "5000",
		Proposer:     proposer,
		Deposit:      big.NewInt(1000),
		Status:       ProposalStatusVoting,
		YesVotes:     big.NewInt(0),
		NoVotes:      big.NewInt(0),
		AbstainVotes: big.NewInt(0),
		VetoVotes:    big.NewInt(0),
	}
	require.NoError(t, staging.SetProposal(p))

	gotP, err := staging.GetProposal(1)
	require.NoError(t, err)
	require.Equal(t, p.Key, gotP.Key)
	require.Equal(t, p.Status, gotP.Status)

	v := &Vote{ProposalID: 1, Voter: voter, Choice: "yes", Power: big.NewInt(10)}
	require.NoError(t, staging.SetVote(v))

	gotV, err := staging.GetVote(1, voter)
	require.NoError(t, err)
	require.Equal(t, v.Choice, gotV.Choice)
}

func TestCheckpointRestoreDiscardsLaterMutations(t *testing.T) {
	store := newMemStore(t)
	staging, err := store.Begin()
	require.NoError(t, err)

	var addr [20]byte
	addr[0] = 0x09
	before := types.NewAccount()
	before.BalanceDGT = big.NewInt(1000)
	require.NoError(t, staging.SetAccount(addr, before))

	chk, err := staging.Checkpoint()
	require.NoError(t, err)

	after := types.NewAccount()
	after.BalanceDGT = big.NewInt(9999)
	require.NoError(t, staging.SetAccount(addr, after))

	got, err := staging.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, 0, big.NewInt(9999).Cmp(got.BalanceDGT))

	staging.Restore(chk)

	got, err = staging.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, 0, big.NewInt(1000).Cmp(got.BalanceDGT), "restore must discard every mutation made after the checkpoint")
}
