package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProtocolMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadProtocol(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Governance.DiscussionDelay() != 72*time.Hour {
		t.Fatalf("expected 3 day discussion delay, got %s", cfg.Governance.DiscussionDelay())
	}
	if err := ValidateProtocol(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadProtocolOverridesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol.toml")
	contents := `[fees]
MaxSwapFeeBps = 500
DefaultActiveSwapFeeBps = 30

[governance]
QuorumBps = 4000
VotingPeriodSecs = 7200

[unwind]
MinFeeGrowthBps = 250
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadProtocol(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fees.MaxSwapFeeBps != 500 || cfg.Fees.DefaultActiveSwapFeeBps != 30 {
		t.Fatalf("fees not applied: %+v", cfg.Fees)
	}
	if cfg.Governance.QuorumBps != 4000 || cfg.Governance.VotingPeriod() != 2*time.Hour {
		t.Fatalf("governance not applied: %+v", cfg.Governance)
	}
	if cfg.Governance.PassThresholdBps != DefaultProtocol().Governance.PassThresholdBps {
		t.Fatalf("unset keys must keep defaults")
	}
	if cfg.Unwind.MinFeeGrowthBps != 250 {
		t.Fatalf("unwind not applied: %+v", cfg.Unwind)
	}
}

func TestLoadProtocolRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.toml")
	if err := os.WriteFile(path, []byte("[fees]\nSwapFee = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadProtocol(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateProtocolRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Protocol){
		"bps overflow":        func(p *Protocol) { p.Governance.QuorumBps = 10_001 },
		"default above max":   func(p *Protocol) { p.Fees.DefaultActiveSwapFeeBps = p.Fees.MaxSwapFeeBps + 1 },
		"full creation fee":   func(p *Protocol) { p.Fees.CreationFeeBps = 10_000 },
		"bad bond target":     func(p *Protocol) { p.Bonding.MinBondTarget = "-5" },
		"bins above max":      func(p *Protocol) { p.Bins.DefaultCount = p.Bins.MaxCount + 1 },
		"short voting period": func(p *Protocol) { p.Governance.VotingPeriodSecs = 60 },
		"zero observation":    func(p *Protocol) { p.Unwind.ObservationPeriodSecs = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultProtocol()
		mutate(&cfg)
		if err := ValidateProtocol(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
