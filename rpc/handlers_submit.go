package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"dytallix/codec"
	"dytallix/core/types"
	"dytallix/mempool"
	"dytallix/observability/logging"
)

// submitRequest is the wire shape every write endpoint accepts: the raw
// signed transaction, hex-encoded. Client-side signing is mandatory (the
// node never holds a user's key), so /staking/delegate, /gov/vote,
// /contract/deploy, and friends all decode the exact same envelope
// /tx/submit does — the distinct URL paths exist for documentation parity
// with spec.md §6, not because the server distinguishes their payloads.
type submitRequest struct {
	Tx string `json:"tx"`
}

type submitResponse struct {
	Status    string `json:"status"`
	Accepted  bool   `json:"accepted"`
	TxHash    string `json:"tx_hash,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func decodeRawTx(r *http.Request) (*types.Transaction, string, error) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", errors.New("malformed request body")
	}
	raw, err := hex.DecodeString(req.Tx)
	if err != nil {
		return nil, req.Tx, errors.New("tx must be hex-encoded")
	}
	tx, err := types.DecodeTransaction(codec.NewReader(raw))
	if err != nil {
		return nil, req.Tx, err
	}
	return tx, req.Tx, nil
}

// handleTxSubmit is the canonical write endpoint; every other POST endpoint
// below is a thin alias of this handler under a different URL, per
// spec.md §6's enumeration.
func (s *Server) handleTxSubmit(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r)
}

// handleSubmitRaw returns a handler identical to handleTxSubmit; label only
// distinguishes the resulting routes in the instrumentation layer's
// logged route pattern (supplied by chi's RoutePattern, not label itself),
// kept as a parameter so call sites stay self-documenting.
func (s *Server) handleSubmitRaw(label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.submit(w, r)
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	tx, rawHex, err := decodeRawTx(r)
	if err != nil {
		s.logger.Debug("rpc submit: decode rejected", logging.MaskField("tx", rawHex), "error", err)
		writeJSON(w, http.StatusBadRequest, submitResponse{Status: "error", ErrorKind: "DecodeError"})
		return
	}

	sender, _, verr := tx.Verify()
	if verr == nil {
		var senderArr [20]byte
		copy(senderArr[:], sender.Bytes())
		if !s.limiter.allow(senderArr) {
			writeJSON(w, http.StatusTooManyRequests, submitResponse{Status: "error", ErrorKind: "RateLimited"})
			return
		}
	}

	if err := s.pool.Admit(tx); err != nil {
		var admErr *mempool.AdmissionError
		if errors.As(err, &admErr) {
			s.logger.Debug("rpc submit: admission rejected", logging.MaskField("tx", rawHex), "kind", admErr.Kind)
			writeJSON(w, http.StatusBadRequest, submitResponse{Status: "error", ErrorKind: string(admErr.Kind)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, submitResponse{Status: "error", ErrorKind: "DecodeError"})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Status:   "ok",
		Accepted: true,
		TxHash:   hex.EncodeToString(tx.Hash()),
	})
}
