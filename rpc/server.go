// Package rpc implements the node's JSON HTTP surface (spec.md §6): a
// go-chi/chi/v5 router exposing read endpoints over the last committed
// state.Snapshot and write endpoints that decode a client-signed
// transaction and hand it to the mempool, exactly as spec.md's
// "client-side signing is mandatory" model requires — this server never
// holds a key capable of signing on a user's behalf.
package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/mempool"
	"dytallix/observability"
	"dytallix/oracle"
)

// Config configures a Server instance.
type Config struct {
	Auth          AuthConfig
	CORS          CORSConfig
	SubmitRatePS  float64 // per-sender submit rate, 0 = default
	SubmitBurst   int
}

// Server wires the world-state store, mempool, and oracle cache into HTTP
// handlers. It holds no signing key and never mutates state directly: every
// state change flows through mempool.Admit, and every read flows through a
// fresh state.Snapshot.
type Server struct {
	store  *state.Store
	pool   *mempool.Mempool
	oracle *oracle.Cache
	chain  *ChainView
	logger *slog.Logger

	cfg     Config
	auth    *Authenticator
	limiter *senderLimiter
	metrics moduleMetricsRecorder
	hub     *streamHub
}

// moduleMetricsRecorder matches observability.ModuleMetrics()'s returned
// type structurally; that type is unexported, so this interface is the
// only way to hold it in a struct field outside package observability.
type moduleMetricsRecorder interface {
	Observe(module, method string, status int, duration time.Duration)
}

// NewServer constructs a Server. store/pool/oracleCache/chain/logger must
// all be non-nil; cfg may be the zero value, which disables auth and uses
// default CORS/rate-limit settings.
func NewServer(store *state.Store, pool *mempool.Mempool, oracleCache *oracle.Cache, chain *ChainView, logger *slog.Logger, cfg Config) *Server {
	return &Server{
		store:   store,
		pool:    pool,
		oracle:  oracleCache,
		chain:   chain,
		logger:  logger,
		cfg:     cfg,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: newSenderLimiter(cfg.SubmitRatePS, cfg.SubmitBurst),
		metrics: observability.ModuleMetrics(),
		hub:     newStreamHub(),
	}
}

// NotifyCommit feeds a just-committed block to the server's in-memory chain
// view and broadcasts it to any connected /blockchain/stream subscribers.
// Called by whatever drives executor.Commit (the node main loop).
func (s *Server) NotifyCommit(header *types.BlockHeader, txCount int) {
	s.chain.Update(header, txCount)
	s.hub.broadcast(header)
}

// Router builds the complete HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors(s.cfg.CORS))
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)

	r.Get("/blockchain/height", s.handleBlockchainHeight)
	r.Get("/blockchain/stats", s.handleBlockchainStats)
	r.Get("/blockchain/stream", s.handleStream)

	r.Get("/account/{addr}", s.handleGetAccount)

	r.Post("/tx/submit", s.handleTxSubmit)
	r.Get("/tx/{hash}", s.handleGetTx)

	r.Post("/staking/delegate", s.handleSubmitRaw("staking_delegate"))
	r.Post("/staking/undelegate", s.handleSubmitRaw("staking_undelegate"))
	r.Post("/staking/claim", s.handleSubmitRaw("staking_claim"))
	r.Get("/staking/{addr}/accrued", s.handleStakingAccrued)
	r.Get("/staking/stats", s.handleStakingStats)

	r.Group(func(admin chi.Router) {
		admin.Use(s.auth.RequireOperator)
		admin.Post("/gov/proposals", s.handleSubmitRaw("gov_submit_proposal"))
		admin.Post("/gov/vote", s.handleSubmitRaw("gov_vote"))
		admin.Post("/gov/deposit", s.handleSubmitRaw("gov_deposit"))
		admin.Post("/contract/deploy", s.handleSubmitRaw("contract_deploy"))
		admin.Post("/contract/call", s.handleSubmitRaw("contract_call"))
	})
	r.Get("/gov/proposals/{id}", s.handleGetProposal)

	r.Get("/ai/risk/{tx_hash}", s.handleGetRisk)

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.Observe("rpc", r.Method+" "+routePattern(r), rec.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// liveStoreView adapts *state.Store to mempool.StateView by opening a fresh
// Snapshot on every lookup, so admission always sees the latest committed
// state rather than whatever root existed when the mempool was constructed.
type liveStoreView struct {
	store *state.Store
}

// NewLiveStateView returns a mempool.StateView backed by store that never
// goes stale: every GetAccount call re-opens the store's current snapshot.
func NewLiveStateView(store *state.Store) mempool.StateView {
	return liveStoreView{store: store}
}

func (v liveStoreView) GetAccount(addr [20]byte) (*types.Account, error) {
	snap, err := v.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.GetAccount(addr)
}
