// Command dytallixd is the node entrypoint: it loads configuration, opens
// the trie-backed state store, wires the mempool/executor/WASM runtime,
// and drives a fixed-interval block production loop while serving the
// node's JSON HTTP surface and Prometheus metrics.
//
// dytallixd is a single-proposer node: it does not run a BFT consensus
// engine or p2p network (out of SPEC_FULL.md's scope — a single
// deterministic state-transition engine is what spec.md asks for). Every
// block is proposed and committed locally on a fixed timer, the way a
// devnet validator would run before wiring up multi-node consensus.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dytallix/config"
	"dytallix/core/state"
	"dytallix/core/types"
	"dytallix/crypto"
	"dytallix/executor"
	"dytallix/mempool"
	"dytallix/native"
	"dytallix/observability"
	"dytallix/observability/logging"
	telemetry "dytallix/observability/otel"
	"dytallix/oracle"
	"dytallix/rpc"
	"dytallix/storage"
	auditexport "dytallix/tools/receiptexport"
	"dytallix/wasmvm"
)

// receiptExportInterval is how many committed blocks accumulate before the
// receipt batch is flushed to a new Parquet file; auditexport.Export
// itself has no notion of batching or scheduling.
const receiptExportInterval = 100

func main() {
	configFile := flag.String("config", "./dytallixd.toml", "Path to the configuration file")
	auditDir := flag.String("audit-dir", "", "Directory to write periodic receipt Parquet exports to (disabled if empty)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DYTALLIX_ENV"))
	logger := logging.Setup("dytallixd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "dytallixd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    true,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "err", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	validatorKeyBytes, err := hex.DecodeString(cfg.ValidatorKey)
	if err != nil {
		logger.Error("failed to decode validator key", "err", err)
		os.Exit(1)
	}
	validatorKey, err := crypto.PrivateKeyFromBytes(validatorKeyBytes)
	if err != nil {
		logger.Error("failed to parse validator key", "err", err)
		os.Exit(1)
	}
	defer validatorKey.Zero()
	var proposer [20]byte
	copy(proposer[:], validatorKey.Public().Address().Bytes())

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db, nil)

	gasPriceMin, ok := new(big.Int).SetString(cfg.Blocks.GasPriceMinWei, 10)
	if !ok {
		logger.Error("invalid GasPriceMinWei", "value", cfg.Blocks.GasPriceMinWei)
		os.Exit(1)
	}
	blockEmission, ok := new(big.Int).SetString(cfg.Blocks.BlockEmissionWei, 10)
	if !ok {
		logger.Error("invalid BlockEmissionWei", "value", cfg.Blocks.BlockEmissionWei)
		os.Exit(1)
	}

	var runtime native.ContractRuntime
	if cfg.WASM.Enabled {
		runtime = wasmvm.NewRuntime().WithMaxCallDepth(cfg.WASM.MaxCallDepth)
	}

	execCfg := executor.Config{
		ChainID:               cfg.ChainID,
		GasPriceMin:           gasPriceMin,
		DefaultGasLimit:       cfg.Blocks.DefaultGasLimit,
		DefaultMaxGasPerBlock: cfg.Blocks.MaxGasPerBlock,
		BlockEmission:         blockEmission,
		Pauses:                cfg.Global.Pauses,
	}
	exec := executor.New(store, execCfg, runtime)

	pool := mempool.New(mempool.Config{
		ChainID:     cfg.ChainID,
		GasLimit:    cfg.Blocks.DefaultGasLimit,
		GasPriceMin: gasPriceMin,
	}, rpc.NewLiveStateView(store))

	oracleCache := oracle.NewCache(db)
	chainView := rpc.NewChainView()

	rpcCfg := rpc.Config{
		Auth: rpc.AuthConfig{
			Enabled:    strings.TrimSpace(os.Getenv("DYTALLIX_JWT_SECRET")) != "",
			HMACSecret: os.Getenv("DYTALLIX_JWT_SECRET"),
			Issuer:     "dytallixd",
			Audience:   "dytallixd-operators",
		},
		CORS: rpc.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	server := rpc.NewServer(store, pool, oracleCache, chainView, logger, rpcCfg)

	httpServer := &http.Server{Addr: cfg.RPCAddress, Handler: server.Router()}
	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server failed", "err", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "address", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blockInterval := time.Duration(cfg.BlockIntervalMs) * time.Millisecond
	runBlockLoop(ctx, logger, store, pool, exec, server, proposer, blockInterval, *auditDir)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

// runBlockLoop drives begin_block/deliver_tx*/end_block/commit once per
// tick until ctx is cancelled. height is tracked in memory starting from
// zero; dytallixd does not yet persist/recover the last committed height
// across restarts (a fresh data directory is assumed for now).
func runBlockLoop(ctx context.Context, logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}, store *state.Store, pool *mempool.Mempool, exec *executor.Executor, server *rpc.Server, proposer [20]byte, interval time.Duration, auditDir string) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consensusMetrics := observability.Consensus()
	lastTick := time.Now()

	var height uint64
	var pendingReceipts []*types.Receipt

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			consensusMetrics.RecordBlockInterval(tick.Sub(lastTick))
			lastTick = tick
			observability.Chain().SetMempoolSize(pool.Len())

			committed, receipts, err := produceBlock(store, pool, exec, proposer, height, tick.Unix())
			if err != nil {
				logger.Error("block production failed", "height", height, "err", err)
				continue
			}
			if committed == nil {
				// Nothing admitted and nothing to commit; retry next tick
				// at the same height.
				continue
			}

			pendingReceipts = append(pendingReceipts, receipts...)
			server.NotifyCommit(committed.Header, len(committed.Transactions))
			logger.Info("committed block", "height", committed.Header.Height, "tx_count", len(committed.Transactions))
			height++

			if auditDir != "" && height%receiptExportInterval == 0 && len(pendingReceipts) > 0 {
				path := auditDir + "/receipts-" + strconv.FormatUint(height, 10) + ".parquet"
				if err := auditexport.Export(path, pendingReceipts); err != nil {
					logger.Error("receipt export failed", "path", path, "err", err)
				} else {
					logger.Info("receipts exported", "path", path, "count", len(pendingReceipts))
				}
				pendingReceipts = nil
			}
		}
	}
}

// produceBlock runs one begin/deliver*/end/commit cycle against the
// mempool's current pending set. Once DeliverTx reports
// executor.ErrBlockGasExhausted, no further tx is delivered this block and
// the rest stay in the mempool for a later block. A tx whose DeliverTx call
// errors for any other reason (malformed beyond what admission already
// checked) is dropped from the mempool without a receipt, per
// executor.DeliverTx's contract.
func produceBlock(store *state.Store, pool *mempool.Mempool, exec *executor.Executor, proposer [20]byte, height uint64, timestamp int64) (*types.Block, []*types.Receipt, error) {
	if err := exec.BeginBlock(height, timestamp, proposer); err != nil {
		return nil, nil, fmt.Errorf("begin_block: %w", err)
	}

	const maxTxsPerBlock = 10_000
	pending := pool.Pending(maxTxsPerBlock)

	var receipts []*types.Receipt
	var includedHashes [][]byte
	for _, tx := range pending {
		receipt, err := exec.DeliverTx(tx)
		if errors.Is(err, executor.ErrBlockGasExhausted) {
			break
		}
		if err != nil {
			pool.Remove(tx.Hash())
			continue
		}
		receipts = append(receipts, receipt)
		includedHashes = append(includedHashes, tx.Hash())
	}

	if err := exec.EndBlock(); err != nil {
		return nil, nil, fmt.Errorf("end_block: %w", err)
	}
	block, err := exec.Commit()
	if err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	pool.DropIncluded(includedHashes)
	return block, receipts, nil
}
