package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dytallix/crypto"
)

func (s *Server) handleBlockchainHeight(w http.ResponseWriter, _ *http.Request) {
	header := s.chain.Latest()
	if header == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok", "height": uint64(0), "state_root": hex.EncodeToString(s.store.Root()), "timestamp": int64(0),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"height":     header.Height,
		"state_root": hex.EncodeToString(header.StateRoot),
		"timestamp":  header.Timestamp,
	})
}

func (s *Server) handleBlockchainStats(w http.ResponseWriter, _ *http.Request) {
	header := s.chain.Latest()
	height := uint64(0)
	if header != nil {
		height = header.Height
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"height":             height,
		"total_transactions": s.chain.TotalTransactions(),
		"mempool_size":       s.pool.Len(),
	})
}

// resolveAddress accepts either the canonical bech32 "dytallix1..." form or
// the legacy "dyt"+hex+checksum form, per spec.md §6: the legacy form is
// read-only lookup only, never accepted at admission time (admission goes
// through mempool.Admit, which only ever sees an address recovered from a
// transaction's own signature, never a path-parameter string).
func resolveAddress(raw string) ([20]byte, error) {
	var out [20]byte
	if addr, err := crypto.DecodeAddress(raw); err == nil {
		copy(out[:], addr.Bytes())
		return out, nil
	}
	addr, err := crypto.DecodeLegacyAddress(raw)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := resolveAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid address: "+err.Error())
		return
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	acct, err := snap.GetAccount(addr)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"balance_DGT": acct.BalanceDGT.String(),
		"balance_DRT": acct.BalanceDRT.String(),
		"nonce":       acct.Nonce,
		"pubkey_algo": acct.PubKeyAlgo,
	})
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(chi.URLParam(r, "hash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid tx hash: "+err.Error())
		return
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	receipt, err := snap.GetReceipt(raw)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if receipt == nil {
		writeJSONError(w, http.StatusNotFound, "receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "receipt": receipt})
}

func (s *Server) handleStakingAccrued(w http.ResponseWriter, r *http.Request) {
	addr, err := resolveAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid address: "+err.Error())
		return
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	delegations, err := snap.DelegationsByDelegator(addr)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	accrued := big.NewInt(0)
	for _, d := range delegations {
		accrued.Add(accrued, d.AccruedRewards)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "accrued": accrued.String()})
}

func (s *Server) handleStakingStats(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.store.Snapshot()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	global, err := snap.GetStakingGlobal()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"total_stake":      global.TotalStake.String(),
		"reward_index":     global.RewardIndex.String(),
		"pending_emission": global.PendingStakingEmission.String(),
	})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	proposal, err := snap.GetProposal(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if proposal == nil {
		writeJSONError(w, http.StatusNotFound, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "proposal": proposal})
}

func (s *Server) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(chi.URLParam(r, "tx_hash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid tx hash: "+err.Error())
		return
	}
	score, ok, err := s.oracle.Get(raw)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no risk score cached for this transaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"risk_score": score.Score,
		"confidence": score.Confidence,
	})
}
