package main

import (
	"fmt"
	"sort"

	"sovereign/core/state"
	"sovereign/crypto"
	"sovereign/native/sovereign"
)

type sovereignReport struct {
	ID         string   `json:"id"`
	Phase      string   `json:"phase"`
	Depositors int      `json:"depositors"`
	Positions  int      `json:"positions"`
	ShareBps   uint32   `json:"shareBps"`
	Violations []string `json:"violations,omitempty"`
}

type auditReport struct {
	Records    map[string]int    `json:"records"`
	Sovereigns []sovereignReport `json:"sovereigns"`
	Healthy    bool              `json:"healthy"`
}

type sovereignRecords struct {
	sov       *sovereign.Sovereign
	deposits  []*sovereign.DepositRecord
	positions []*sovereign.PositionNFT
}

// audit walks every stored record and re-checks the conservation rules the
// engines enforce on write.
func audit(store *state.Manager) (*auditReport, error) {
	report := &auditReport{Records: make(map[string]int), Healthy: true}
	bySovereign := make(map[string]*sovereignRecords)
	entry := func(id string) *sovereignRecords {
		rec, ok := bySovereign[id]
		if !ok {
			rec = &sovereignRecords{}
			bySovereign[id] = rec
		}
		return rec
	}

	err := store.Walk(func(kind state.RecordKind, record any) bool {
		report.Records[kind.String()]++
		switch v := record.(type) {
		case *sovereign.Sovereign:
			entry(v.ID).sov = v
		case *sovereign.DepositRecord:
			rec := entry(v.SovereignID)
			rec.deposits = append(rec.deposits, v)
		case *sovereign.PositionNFT:
			rec := entry(v.SovereignID)
			rec.positions = append(rec.positions, v)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(bySovereign))
	for id := range bySovereign {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sr := checkSovereign(id, bySovereign[id])
		if len(sr.Violations) > 0 {
			report.Healthy = false
		}
		report.Sovereigns = append(report.Sovereigns, sr)
	}
	return report, nil
}

func checkSovereign(id string, rec *sovereignRecords) sovereignReport {
	sr := sovereignReport{ID: id, Depositors: len(rec.deposits), Positions: len(rec.positions)}
	if rec.sov == nil {
		sr.Phase = "missing"
		sr.Violations = append(sr.Violations, "records without a sovereign")
		return sr
	}
	sr.Phase = rec.sov.Phase.String()

	minted := make(map[[20]byte]uint32)
	for _, pos := range rec.positions {
		minted[pos.Parent] += pos.SharesBps
	}
	for _, dep := range rec.deposits {
		sr.ShareBps += dep.PositionBps
		if dep.MintedBps > dep.PositionBps {
			sr.Violations = append(sr.Violations, fmt.Sprintf("depositor %s minted %d of %d bps", crypto.Address(dep.Depositor), dep.MintedBps, dep.PositionBps))
		}
		if got := minted[dep.Depositor]; got != dep.MintedBps {
			sr.Violations = append(sr.Violations, fmt.Sprintf("depositor %s positions hold %d bps, record says %d", crypto.Address(dep.Depositor), got, dep.MintedBps))
		}
		delete(minted, dep.Depositor)
	}
	for parent, bps := range minted {
		sr.Violations = append(sr.Violations, fmt.Sprintf("positions of %s hold %d bps without a deposit record", crypto.Address(parent), bps))
	}

	if rec.sov.Pool != nil {
		if err := rec.sov.Pool.CheckInvariants(); err != nil {
			sr.Violations = append(sr.Violations, err.Error())
		}
		if len(rec.deposits) > 0 && sr.ShareBps != 10_000 {
			sr.Violations = append(sr.Violations, fmt.Sprintf("deposit shares sum to %d bps", sr.ShareBps))
		}
	}
	sort.Strings(sr.Violations)
	return sr
}
