package config

import "fmt"

var (
	MinVotingPeriodSeconds = uint64(3600)
)

func ValidateConfig(g Global) error {
	if g.Governance.VotingPeriodSecs < MinVotingPeriodSeconds {
		return fmt.Errorf("governance: voting_period_seconds too small")
	}
	if g.Governance.VetoThresholdBPS > 10_000 || g.Governance.ThresholdBPS > 10_000 || g.Governance.QuorumBPS > 10_000 {
		return fmt.Errorf("governance: bps value exceeds 10000")
	}
	if g.Mempool.MaxBytes <= 0 {
		return fmt.Errorf("mempool: max_bytes <= 0")
	}
	if g.Blocks.MaxTxs <= 0 {
		return fmt.Errorf("blocks: max_txs <= 0")
	}
	if g.Blocks.MaxGasPerBlock == 0 {
		return fmt.Errorf("blocks: max_gas_per_block == 0")
	}
	if g.WASM.Enabled && g.WASM.MaxCallDepth <= 0 {
		return fmt.Errorf("wasm: max_call_depth <= 0")
	}
	return nil
}
