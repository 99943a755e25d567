// Package governance implements the parameter-change proposal lifecycle
// described in spec.md §4.8: deposit period, voting period, tally, and
// end-of-block execution against a closed registry of governable keys.
package governance

import (
	"fmt"
	"strconv"
	"strings"
)

// Failure kinds per spec.md §4.8.
var (
	ErrUnknownParam = fmt.Errorf("governance: unknown parameter")
	ErrBadValue     = fmt.Errorf("governance: malformed parameter value")
	ErrOutOfRange   = fmt.Errorf("governance: parameter value out of range")
)

// ParamType enumerates the value shapes the registry accepts.
type ParamType int

const (
	ParamTypeUint64 ParamType = iota
	ParamTypeBasisPoints
)

// ParamSpec describes one governable key: its value type and valid range.
type ParamSpec struct {
	Type ParamType
	Min  uint64
	Max  uint64
}

// Registry enumerates every key ParameterChange proposals may target, per
// spec.md §4.8. Emission schedule fields are basis-point shares of the
// per-block DRT emission and are validated individually here.
// ValidateEmissionSchedule checks that the four shares sum to 10,000 bps;
// proposal submission and execution do not call it, so a ParameterChange
// to one share is not checked against the other three.
var Registry = map[string]ParamSpec{
	"gas_limit":                    {Type: ParamTypeUint64, Min: 1, Max: 1 << 32},
	"max_gas_per_block":            {Type: ParamTypeUint64, Min: 1, Max: 1 << 40},
	"min_deposit":                  {Type: ParamTypeUint64, Min: 0, Max: 1 << 62},
	"voting_period_blocks":         {Type: ParamTypeUint64, Min: 1, Max: 1 << 32},
	"quorum":                       {Type: ParamTypeBasisPoints},
	"threshold":                    {Type: ParamTypeBasisPoints},
	"veto_threshold":               {Type: ParamTypeBasisPoints},
	"emission_schedule.block_rewards":        {Type: ParamTypeBasisPoints},
	"emission_schedule.staking_rewards":      {Type: ParamTypeBasisPoints},
	"emission_schedule.ai_module_incentives": {Type: ParamTypeBasisPoints},
	"emission_schedule.bridge_operations":    {Type: ParamTypeBasisPoints},
}

const basisPointsDenominator = 10_000

// EmissionScheduleKeys lists the four emission_schedule registry keys, in
// the fixed order their shares are reported and validated.
var EmissionScheduleKeys = []string{
	"emission_schedule.block_rewards",
	"emission_schedule.staking_rewards",
	"emission_schedule.ai_module_incentives",
	"emission_schedule.bridge_operations",
}

// ParseAndValidate parses value against key's registered type/range. It
// rejects unknown keys with ErrUnknownParam, malformed values with
// ErrBadValue, and out-of-range values with ErrOutOfRange.
func ParseAndValidate(key, value string) (uint64, error) {
	spec, ok := Registry[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, key)
	}
	trimmed := strings.TrimSpace(value)
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrBadValue, value, err)
	}
	switch spec.Type {
	case ParamTypeBasisPoints:
		if parsed > basisPointsDenominator {
			return 0, fmt.Errorf("%w: %q must be <= %d", ErrOutOfRange, key, basisPointsDenominator)
		}
	default:
		if parsed < spec.Min || parsed > spec.Max {
			return 0, fmt.Errorf("%w: %q must be within [%d, %d]", ErrOutOfRange, key, spec.Min, spec.Max)
		}
	}
	return parsed, nil
}

// ValidateEmissionSchedule checks that the four emission_schedule shares
// (each already individually range-checked by ParseAndValidate) sum to
// exactly 10,000 bps. Callers pass the registry's full resolved view
// (existing params overlaid with any change about to be installed) so a
// proposal touching only one share is still checked against the whole set.
func ValidateEmissionSchedule(shares map[string]uint64) error {
	var sum uint64
	for _, key := range EmissionScheduleKeys {
		sum += shares[key]
	}
	if sum != basisPointsDenominator {
		return fmt.Errorf("%w: emission_schedule shares sum to %d, want %d", ErrOutOfRange, sum, basisPointsDenominator)
	}
	return nil
}
