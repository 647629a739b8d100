package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	day = 24 * 60 * 60

	defaultDiscussionDelaySecs = 3 * day
	defaultVotingPeriodSecs    = 4 * day
	defaultTimelockSecs        = 2 * day
)

// DefaultProtocol returns the protocol defaults used when no file is present.
func DefaultProtocol() Protocol {
	return Protocol{
		Fees: Fees{
			CreationFeeBps:            50,
			DefaultRecoverySwapFeeBps: 100,
			DefaultActiveSwapFeeBps:   100,
			MaxSwapFeeBps:             1_000,
			BinFeeShareBps:            2_000,
			DefaultCreatorFeeShareBps: 2_000,
			MaxCreatorFeeShareBps:     5_000,
		},
		Bonding: Bonding{
			MinBondTarget:         "1000000000",
			MinDurationSecs:       60 * 60,
			MaxDurationSecs:       30 * day,
			RecoveryMultiplierBps: 10_000,
		},
		Bins: Bins{
			DefaultCount: 10,
			MaxCount:     256,
		},
		Governance: Governance{
			QuorumBps:           5_000,
			PassThresholdBps:    6_667,
			DiscussionDelaySecs: defaultDiscussionDelaySecs,
			VotingPeriodSecs:    defaultVotingPeriodSecs,
			TimelockSecs:        defaultTimelockSecs,
		},
		Unwind: Unwind{
			ObservationPeriodSecs:     7 * day,
			MinFeeGrowthBps:           100,
			ActivityCheckCooldownSecs: 30 * day,
		},
	}
}

// LoadProtocol decodes a TOML protocol file layered over DefaultProtocol. A
// missing file yields the defaults.
func LoadProtocol(path string) (Protocol, error) {
	cfg := DefaultProtocol()
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return cfg, nil
	}
	if _, err := os.Stat(trimmed); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(trimmed, &cfg)
	if err != nil {
		return Protocol{}, fmt.Errorf("decode protocol config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Protocol{}, fmt.Errorf("protocol config %s: unknown key %s", trimmed, undecoded[0].String())
	}
	if err := ValidateProtocol(cfg); err != nil {
		return Protocol{}, err
	}
	return cfg, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
