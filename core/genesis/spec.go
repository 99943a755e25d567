// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"
)

// GenesisSpec is the declarative genesis document: the chain identity,
// initial validator set, account allocations (DGT/DRT), and the initial
// values for every governable parameter (spec.md §3/§4.8's registry).
type GenesisSpec struct {
	GenesisTime string                `json:"genesisTime"`
	ChainID     string                `json:"chainId"`
	Validators  []ValidatorSpec       `json:"validators"`
	Alloc       map[string]AllocEntry `json:"alloc"`
	Params      map[string]string     `json:"params"`

	genesisTimestamp time.Time
}

// ValidatorSpec is one genesis validator: its operator address, consensus
// public key (hex), commission rate, and initial self-stake.
type ValidatorSpec struct {
	Address         string `json:"address"`
	ConsensusPubKey string `json:"consensusPubKey"`
	CommissionBPS   uint32 `json:"commissionBps"`
	SelfStake       string `json:"selfStake"`
}

// AllocEntry is one genesis account's initial balances.
type AllocEntry struct {
	BalanceDGT string `json:"balanceDGT"`
	BalanceDRT string `json:"balanceDRT"`
}

// LoadGenesisSpec reads and validates a genesis document from path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time (valid only after
// validate has run, i.e. after LoadGenesisSpec or an explicit Validate).
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Validate re-runs the spec's structural checks; exported for callers that
// construct a GenesisSpec in memory rather than loading it from disk.
func (s *GenesisSpec) Validate() error { return s.validate() }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if strings.TrimSpace(s.ChainID) == "" {
		return fmt.Errorf("chainId must be provided")
	}

	validatorAddresses := make(map[[20]byte]struct{}, len(s.Validators))
	for i := range s.Validators {
		v := &s.Validators[i]
		if strings.TrimSpace(v.Address) == "" {
			return fmt.Errorf("validator[%d]: address must be provided", i)
		}
		addr, err := ParseBech32Account(v.Address)
		if err != nil {
			return fmt.Errorf("validator[%d]: %w", i, err)
		}
		if _, exists := validatorAddresses[addr]; exists {
			return fmt.Errorf("validator[%d]: duplicate address %q", i, v.Address)
		}
		validatorAddresses[addr] = struct{}{}

		pk := strings.TrimPrefix(strings.TrimSpace(v.ConsensusPubKey), "0x")
		if pk == "" {
			return fmt.Errorf("validator[%d]: consensusPubKey must be provided", i)
		}
		if _, err := hex.DecodeString(pk); err != nil {
			return fmt.Errorf("validator[%d]: invalid consensusPubKey: %w", i, err)
		}
		if v.CommissionBPS > 10_000 {
			return fmt.Errorf("validator[%d]: commissionBps must be <= 10000", i)
		}
		if _, err := parseAmountString(v.SelfStake); err != nil {
			return fmt.Errorf("validator[%d]: selfStake: %w", i, err)
		}
	}

	if len(s.Alloc) > 0 {
		accounts := make([]string, 0, len(s.Alloc))
		for account := range s.Alloc {
			accounts = append(accounts, account)
		}
		sort.Strings(accounts)
		for _, account := range accounts {
			if _, err := ParseBech32Account(account); err != nil {
				return fmt.Errorf("alloc[%q]: %w", account, err)
			}
			entry := s.Alloc[account]
			if _, err := parseAmountString(entry.BalanceDGT); err != nil {
				return fmt.Errorf("alloc[%q].balanceDGT: %w", account, err)
			}
			if _, err := parseAmountString(entry.BalanceDRT); err != nil {
				return fmt.Errorf("alloc[%q].balanceDRT: %w", account, err)
			}
		}
	}

	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
