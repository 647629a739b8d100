package config

import (
	"math/big"
	"time"
)

// Protocol bundles the protocol-wide economics every sovereign operation is
// evaluated against. A value is passed explicitly into the engines so several
// configurations can coexist in one process.
type Protocol struct {
	Fees       Fees       `toml:"fees"`
	Bonding    Bonding    `toml:"bonding"`
	Bins       Bins       `toml:"bins"`
	Governance Governance `toml:"governance"`
	Unwind     Unwind     `toml:"unwind"`
}

// Fees captures the fee schedule bounds in basis points.
type Fees struct {
	CreationFeeBps            uint32 `toml:"CreationFeeBps"`
	DefaultRecoverySwapFeeBps uint32 `toml:"DefaultRecoverySwapFeeBps"`
	DefaultActiveSwapFeeBps   uint32 `toml:"DefaultActiveSwapFeeBps"`
	MaxSwapFeeBps             uint32 `toml:"MaxSwapFeeBps"`
	BinFeeShareBps            uint32 `toml:"BinFeeShareBps"`
	DefaultCreatorFeeShareBps uint32 `toml:"DefaultCreatorFeeShareBps"`
	MaxCreatorFeeShareBps     uint32 `toml:"MaxCreatorFeeShareBps"`
}

// Bonding bounds the fundraising phase.
type Bonding struct {
	MinBondTarget         string `toml:"MinBondTarget"`
	MinDurationSecs       uint64 `toml:"MinDurationSecs"`
	MaxDurationSecs       uint64 `toml:"MaxDurationSecs"`
	RecoveryMultiplierBps uint32 `toml:"RecoveryMultiplierBps"`
}

// Bins bounds the supply segmentation.
type Bins struct {
	DefaultCount uint32 `toml:"DefaultCount"`
	MaxCount     uint32 `toml:"MaxCount"`
}

// Governance holds the unwind proposal policy. Thresholds are snapshotted
// into each proposal at creation.
type Governance struct {
	QuorumBps           uint32 `toml:"QuorumBps"`
	PassThresholdBps    uint32 `toml:"PassThresholdBps"`
	DiscussionDelaySecs uint64 `toml:"DiscussionDelaySecs"`
	VotingPeriodSecs    uint64 `toml:"VotingPeriodSecs"`
	TimelockSecs        uint64 `toml:"TimelockSecs"`
}

// Unwind controls the observation window that decides whether an initiated
// unwind executes or is cancelled.
type Unwind struct {
	ObservationPeriodSecs     uint64 `toml:"ObservationPeriodSecs"`
	MinFeeGrowthBps           uint32 `toml:"MinFeeGrowthBps"`
	ActivityCheckCooldownSecs uint64 `toml:"ActivityCheckCooldownSecs"`
}

// MinBondTargetAmount parses the configured minimum bond target.
func (p Protocol) MinBondTargetAmount() (*big.Int, error) {
	return parseUintAmount(p.Bonding.MinBondTarget)
}

// DiscussionDelay returns the wait between proposal creation and voting.
func (g Governance) DiscussionDelay() time.Duration { return seconds(g.DiscussionDelaySecs) }

// VotingPeriod returns the length of the voting window.
func (g Governance) VotingPeriod() time.Duration { return seconds(g.VotingPeriodSecs) }

// Timelock returns the delay between a passing vote and execution.
func (g Governance) Timelock() time.Duration { return seconds(g.TimelockSecs) }

// ObservationPeriod returns the unwind observation window.
func (u Unwind) ObservationPeriod() time.Duration { return seconds(u.ObservationPeriodSecs) }

// ActivityCheckCooldown returns the minimum spacing between activity checks.
func (u Unwind) ActivityCheckCooldown() time.Duration {
	return seconds(u.ActivityCheckCooldownSecs)
}

func seconds(v uint64) time.Duration {
	return time.Duration(v) * time.Second
}
