package config

// Governance captures global governance policy knobs that must be validated
// before applying runtime configuration updates. Only ValidateConfig reads
// them; they are not fed into the governable parameter registry (see
// package governance) or into the executor's governance configuration.
type Governance struct {
	QuorumBPS        uint32
	ThresholdBPS     uint32
	VetoThresholdBPS uint32
	MinDepositWei    string
	VotingPeriodSecs uint64
}

// Mempool controls global transaction admission limits.
type Mempool struct {
	MaxBytes     int64
	MaxPerSender int
}

// Blocks captures block production limits.
type Blocks struct {
	MaxTxs          int64
	MaxGasPerBlock  uint64
	GasPriceMinWei  string
	DefaultGasLimit uint64
	// BlockEmissionWei is the total DRT minted each height, split across
	// the four emission pools by the governable emission_schedule.*
	// basis-point fields. Unlike the split itself, the total is a
	// genesis-fixed node parameter, not part of the governable registry.
	BlockEmissionWei string
}

// Pauses records which native modules are currently paused by governance.
type Pauses map[string]bool

// IsPaused implements native/common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[module]
}

// WASM controls the deterministic contract runtime.
type WASM struct {
	Enabled       bool
	MaxCallDepth  int
	GasPerOp      uint64
}

// Global bundles the runtime configuration values enforced by ValidateConfig.
type Global struct {
	Governance Governance
	Mempool    Mempool
	Blocks     Blocks
	WASM       WASM
	Pauses     Pauses
}
