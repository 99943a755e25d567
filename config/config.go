package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"dytallix/crypto"
)

// Config is the node's on-disk configuration. Fields mirror the environment
// variables of spec.md §6 so an operator can override any of them without
// editing the file (env wins over file, matching the teacher's
// load-or-create-default idiom).
type Config struct {
	ChainID         string   `toml:"ChainID"`
	ListenAddress   string   `toml:"ListenAddress"`
	RPCAddress      string   `toml:"RPCAddress"`
	MetricsAddress  string   `toml:"MetricsAddress"`
	DataDir         string   `toml:"DataDir"`
	ValidatorKey    string   `toml:"ValidatorKey"`
	ValidatorAlgo   string   `toml:"ValidatorAlgo"` // "pqc_dilithium" | "legacy_ecdsa"
	BlockIntervalMs uint64   `toml:"BlockIntervalMs"`
	GasPriceMinWei  string   `toml:"GasPriceMinWei"`
	MaxGasPerBlock  uint64   `toml:"MaxGasPerBlock"`
	EnableWASM      bool     `toml:"EnableWASM"`
	EnableMetrics   bool     `toml:"EnableMetrics"`
	BootstrapPeers  []string `toml:"BootstrapPeers"`

	Global `toml:"Global"`
}

// Load loads the configuration from the given path, creating a default file
// if one does not already exist, then layers environment variable overrides
// on top (see applyEnv).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		def, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg = def
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.ValidatorKey == "" {
		key, err := crypto.GenerateKey(crypto.AlgoDilithium)
		if err != nil {
			return nil, err
		}
		cfg.ValidatorAlgo = string(crypto.AlgoDilithium)
		cfg.ValidatorKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := ValidateConfig(cfg.Global); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GenerateKey(crypto.AlgoDilithium)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ChainID:         "dytallix-testnet",
		ListenAddress:   ":26656",
		RPCAddress:      ":8080",
		MetricsAddress:  ":9090",
		DataDir:         "./dytallix-data",
		ValidatorAlgo:   string(crypto.AlgoDilithium),
		ValidatorKey:    hex.EncodeToString(key.Bytes()),
		BlockIntervalMs: 2000,
		GasPriceMinWei:  "1",
		MaxGasPerBlock:  20_000_000,
		EnableWASM:      true,
		EnableMetrics:   true,
		BootstrapPeers:  []string{},
		Global: Global{
			Governance: Governance{
				QuorumBPS:        3334,
				ThresholdBPS:     5000,
				VetoThresholdBPS: 3334,
				MinDepositWei:    "1000000",
				VotingPeriodSecs: 3600,
			},
			Mempool: Mempool{MaxBytes: 32 << 20, MaxPerSender: 256},
			Blocks: Blocks{
				MaxTxs:           10_000,
				MaxGasPerBlock:   20_000_000,
				GasPriceMinWei:   "1",
				DefaultGasLimit:  200_000,
				BlockEmissionWei: "1000000",
			},
			WASM: WASM{Enabled: true, MaxCallDepth: 8, GasPerOp: 1},
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays the environment variables named in spec.md §6 on top of
// the file-loaded configuration. Empty/unset variables leave the file value
// untouched.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHAIN_ID")); v != "" {
		cfg.ChainID = v
	}
	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("BLOCK_INTERVAL_MS")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.BlockIntervalMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RPC_PORT")); v != "" {
		cfg.RPCAddress = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_PORT")); v != "" {
		cfg.MetricsAddress = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("GAS_PRICE_MIN")); v != "" {
		cfg.GasPriceMinWei = v
		cfg.Blocks.GasPriceMinWei = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_GAS_PER_BLOCK")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MaxGasPerBlock = n
			cfg.Blocks.MaxGasPerBlock = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENABLE_WASM")); v != "" {
		cfg.EnableWASM = parseBool(v)
		cfg.WASM.Enabled = cfg.EnableWASM
	}
	if v := strings.TrimSpace(os.Getenv("ENABLE_METRICS")); v != "" {
		cfg.EnableMetrics = parseBool(v)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
