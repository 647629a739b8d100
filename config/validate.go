package config

import "fmt"

const maxBps = 10_000

var (
	MinVotingPeriodSeconds = uint64(3600)
)

// ValidateProtocol rejects configurations that would break engine invariants.
func ValidateProtocol(p Protocol) error {
	fees := p.Fees
	for name, v := range map[string]uint32{
		"fees.CreationFeeBps":        fees.CreationFeeBps,
		"fees.MaxSwapFeeBps":         fees.MaxSwapFeeBps,
		"fees.BinFeeShareBps":        fees.BinFeeShareBps,
		"fees.MaxCreatorFeeShareBps": fees.MaxCreatorFeeShareBps,
		"governance.QuorumBps":       p.Governance.QuorumBps,
		"governance.PassThreshold":   p.Governance.PassThresholdBps,
		"unwind.MinFeeGrowthBps":     p.Unwind.MinFeeGrowthBps,
	} {
		if v > maxBps {
			return fmt.Errorf("%s: %d exceeds %d bps", name, v, maxBps)
		}
	}
	if fees.CreationFeeBps >= maxBps {
		return fmt.Errorf("fees: creation fee must leave a non-zero reserve")
	}
	if fees.DefaultRecoverySwapFeeBps > fees.MaxSwapFeeBps || fees.DefaultActiveSwapFeeBps > fees.MaxSwapFeeBps {
		return fmt.Errorf("fees: default swap fee above MaxSwapFeeBps")
	}
	if fees.DefaultCreatorFeeShareBps > fees.MaxCreatorFeeShareBps {
		return fmt.Errorf("fees: default creator share above MaxCreatorFeeShareBps")
	}
	if _, err := p.MinBondTargetAmount(); err != nil {
		return fmt.Errorf("bonding: MinBondTarget: %w", err)
	}
	if p.Bonding.MinDurationSecs == 0 || p.Bonding.MinDurationSecs > p.Bonding.MaxDurationSecs {
		return fmt.Errorf("bonding: min_duration > max_duration or zero")
	}
	if p.Bonding.RecoveryMultiplierBps == 0 {
		return fmt.Errorf("bonding: RecoveryMultiplierBps must be positive")
	}
	if p.Bins.DefaultCount == 0 || p.Bins.DefaultCount > p.Bins.MaxCount {
		return fmt.Errorf("bins: default_count must be within [1, max_count]")
	}
	if p.Governance.QuorumBps == 0 {
		return fmt.Errorf("governance: quorum_bps must be positive")
	}
	if p.Governance.VotingPeriodSecs < MinVotingPeriodSeconds {
		return fmt.Errorf("governance: voting_period_seconds too small")
	}
	if p.Unwind.ObservationPeriodSecs == 0 {
		return fmt.Errorf("unwind: observation period must be positive")
	}
	return nil
}
