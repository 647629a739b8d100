package governance

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"
	"time"

	"sovereign/core/events"
	"sovereign/core/types"
	"sovereign/native/sovereign"
)

// mockState backs both the sovereign and the governance engine so unwind
// execution commits through one store.
type mockState struct {
	sovereigns map[string]*sovereign.Sovereign
	deposits   map[string]map[[20]byte]*sovereign.DepositRecord
	positions  map[string]map[[32]byte]*sovereign.PositionNFT
	accounts   map[[20]byte]*types.Account
	holdings   map[string]map[[20]byte]*big.Int
	proposals  map[string]*Proposal
	votes      map[string]*VoteRecord
}

func newMockState() *mockState {
	return &mockState{
		sovereigns: make(map[string]*sovereign.Sovereign),
		deposits:   make(map[string]map[[20]byte]*sovereign.DepositRecord),
		positions:  make(map[string]map[[32]byte]*sovereign.PositionNFT),
		accounts:   make(map[[20]byte]*types.Account),
		holdings:   make(map[string]map[[20]byte]*big.Int),
		proposals:  make(map[string]*Proposal),
		votes:      make(map[string]*VoteRecord),
	}
}

func proposalKey(sovereignID string, id uint64) string {
	return fmt.Sprintf("%s/%d", sovereignID, id)
}

func voteKey(sovereignID string, id uint64, identity string) string {
	return fmt.Sprintf("%s/%d/%s", sovereignID, id, identity)
}

func (m *mockState) SovereignGet(id string) (*sovereign.Sovereign, bool, error) {
	sov, ok := m.sovereigns[id]
	if !ok {
		return nil, false, nil
	}
	return sov.Clone(), true, nil
}

func (m *mockState) SovereignIDs() ([]string, error) {
	ids := make([]string, 0, len(m.sovereigns))
	for id := range m.sovereigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockState) SovereignDepositGet(id string, depositor [20]byte) (*sovereign.DepositRecord, bool, error) {
	rec, ok := m.deposits[id][depositor]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockState) SovereignDeposits(id string) ([]*sovereign.DepositRecord, error) {
	out := make([]*sovereign.DepositRecord, 0, len(m.deposits[id]))
	for _, rec := range m.deposits[id] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Depositor[:]) < string(out[j].Depositor[:])
	})
	return out, nil
}

func (m *mockState) SovereignPositionGet(id string, positionID [32]byte) (*sovereign.PositionNFT, bool, error) {
	pos, ok := m.positions[id][positionID]
	if !ok {
		return nil, false, nil
	}
	return pos.Clone(), true, nil
}

func (m *mockState) SovereignPositions(id string) ([]*sovereign.PositionNFT, error) {
	out := make([]*sovereign.PositionNFT, 0, len(m.positions[id]))
	for _, pos := range m.positions[id] {
		out = append(out, pos.Clone())
	}
	return out, nil
}

func (m *mockState) AccountGet(addr [20]byte) (*types.Account, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return types.NewAccount(), nil
	}
	return acct.Copy(), nil
}

func (m *mockState) HoldingGet(id string, owner [20]byte) (*types.Holding, error) {
	amount := big.NewInt(0)
	if v, ok := m.holdings[id][owner]; ok {
		amount.Set(v)
	}
	return &types.Holding{SovereignID: id, Owner: owner, Amount: amount}, nil
}

func (m *mockState) GovernanceProposals(sovereignID string) ([]*Proposal, error) {
	var out []*Proposal
	for _, p := range m.proposals {
		if p.SovereignID == sovereignID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockState) GovernanceProposalGet(sovereignID string, id uint64) (*Proposal, bool, error) {
	p, ok := m.proposals[proposalKey(sovereignID, id)]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) GovernanceVoteGet(sovereignID string, proposalID uint64, identity string) (*VoteRecord, bool, error) {
	v, ok := m.votes[voteKey(sovereignID, proposalID, identity)]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) GovernanceVotes(sovereignID string, proposalID uint64) ([]*VoteRecord, error) {
	var out []*VoteRecord
	for _, v := range m.votes {
		if v.SovereignID == sovereignID && v.ProposalID == proposalID {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (m *mockState) Commit(cs *types.ChangeSet) error {
	for _, mut := range cs.Mutations() {
		switch rec := mut.Record.(type) {
		case *sovereign.Sovereign:
			m.sovereigns[rec.ID] = rec.Clone()
		case *sovereign.AccountEntry:
			m.accounts[rec.Address] = rec.Account.Copy()
		case *types.Holding:
			if m.holdings[rec.SovereignID] == nil {
				m.holdings[rec.SovereignID] = make(map[[20]byte]*big.Int)
			}
			m.holdings[rec.SovereignID][rec.Owner] = new(big.Int).Set(rec.Amount)
		case *sovereign.DepositRecord:
			if mut.Delete {
				delete(m.deposits[rec.SovereignID], rec.Depositor)
				continue
			}
			if m.deposits[rec.SovereignID] == nil {
				m.deposits[rec.SovereignID] = make(map[[20]byte]*sovereign.DepositRecord)
			}
			m.deposits[rec.SovereignID][rec.Depositor] = rec.Clone()
		case *sovereign.PositionNFT:
			if mut.Delete {
				delete(m.positions[rec.SovereignID], rec.ID)
				continue
			}
			if m.positions[rec.SovereignID] == nil {
				m.positions[rec.SovereignID] = make(map[[32]byte]*sovereign.PositionNFT)
			}
			m.positions[rec.SovereignID][rec.ID] = rec.Clone()
		case *Proposal:
			m.proposals[proposalKey(rec.SovereignID, rec.ID)] = rec.Clone()
		case *VoteRecord:
			m.votes[voteKey(rec.SovereignID, rec.ProposalID, rec.Identity)] = rec.Clone()
		default:
			return fmt.Errorf("mock state: unexpected record %T", mut.Record)
		}
	}
	return nil
}

const testSovereign = "moon"

var (
	creatorAddr = addr(0xC0)
	aliceAddr   = addr(0x01)
	bobAddr     = addr(0x02)
	carolAddr   = addr(0x03)
	daveAddr    = addr(0xD0)
	adminAddr   = addr(0xAD)
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	out[19] = b
	return out
}

type harness struct {
	t         *testing.T
	now       time.Time
	state     *mockState
	sovereign *sovereign.Engine
	gov       *Engine
	recorder  *events.Recorder
}

// newHarness finalizes a sovereign bonded 50/30/20 by alice, bob and carol
// and advances the clock one minute past pool creation.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		now:      time.Unix(1_700_000_000, 0).UTC(),
		state:    newMockState(),
		recorder: &events.Recorder{},
	}
	clock := func() time.Time { return h.now }
	h.sovereign = sovereign.NewEngine()
	h.sovereign.SetState(h.state)
	h.sovereign.SetNowFunc(clock)
	h.sovereign.SetEmitter(h.recorder)
	h.sovereign.SetAdmins(adminAddr)
	h.gov = NewEngine()
	h.gov.SetState(h.state)
	h.gov.SetSovereignEngine(h.sovereign)
	h.gov.SetNowFunc(clock)
	h.gov.SetEmitter(h.recorder)

	_, err := h.sovereign.CreateSovereign(creatorAddr, sovereign.LaunchParams{
		ID:          testSovereign,
		BondTarget:  big.NewInt(1_000_000_000),
		Deadline:    h.now.Add(48 * time.Hour).Unix(),
		TotalSupply: big.NewInt(1_000),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for who, amount := range map[[20]byte]int64{aliceAddr: 500_000_000, bobAddr: 300_000_000, carolAddr: 200_000_000} {
		if _, err := h.sovereign.Fund(who, big.NewInt(amount)); err != nil {
			t.Fatalf("fund: %v", err)
		}
		if _, err := h.sovereign.Deposit(testSovereign, who, big.NewInt(amount)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if _, err := h.sovereign.Finalize(testSovereign, daveAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	h.advance(time.Minute)
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) propose(who [20]byte) uint64 {
	h.t.Helper()
	receipt, err := h.gov.ProposeUnwind(testSovereign, who)
	if err != nil {
		h.t.Fatalf("propose: %v", err)
	}
	return receipt.ProposalID
}

func (h *harness) vote(pid uint64, who [20]byte, support bool) *sovereign.Receipt {
	h.t.Helper()
	receipt, err := h.gov.CastVote(testSovereign, pid, who, support)
	if err != nil {
		h.t.Fatalf("vote: %v", err)
	}
	return receipt
}

func (h *harness) proposal(pid uint64) *Proposal {
	h.t.Helper()
	p, ok, err := h.state.GovernanceProposalGet(testSovereign, pid)
	if err != nil || !ok {
		h.t.Fatalf("load proposal: ok=%v err=%v", ok, err)
	}
	return p
}

const (
	discussion = 3 * 24 * time.Hour
	voting     = 4 * 24 * time.Hour
	timelock   = 2 * 24 * time.Hour
)

func TestComputeTallyBoundaries(t *testing.T) {
	cases := []struct {
		name            string
		forBps, against uint32
		quorum          bool
		passed          bool
	}{
		{"no votes", 0, 0, false, false},
		{"below quorum", 4_999, 0, false, false},
		{"exact quorum unanimous", 5_000, 0, true, true},
		{"exact threshold", 6_667, 3_333, true, true},
		{"one bps short of threshold", 6_666, 3_334, true, false},
		{"quorum met but rejected", 2_000, 4_000, true, false},
	}
	for _, tc := range cases {
		p := &Proposal{
			VotesForBps:      tc.forBps,
			VotesAgainstBps:  tc.against,
			TotalVotedBps:    tc.forBps + tc.against,
			QuorumBps:        5_000,
			PassThresholdBps: 6_667,
		}
		tally := ComputeTally(p)
		if tally.QuorumMet != tc.quorum || tally.Passed != tc.passed {
			t.Fatalf("%s: got quorum=%v passed=%v", tc.name, tally.QuorumMet, tally.Passed)
		}
	}
}

func TestProposeUnwindPreconditions(t *testing.T) {
	h := newHarness(t)

	if _, err := h.gov.ProposeUnwind(testSovereign, daveAddr); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
	if _, err := h.gov.ProposeUnwind(testSovereign, creatorAddr); !errors.Is(err, ErrCreatorExcluded) {
		t.Fatalf("expected ErrCreatorExcluded, got %v", err)
	}
	if _, err := h.gov.ProposeUnwind("missing", aliceAddr); !errors.Is(err, sovereign.ErrSovereignNotFound) {
		t.Fatalf("expected ErrSovereignNotFound, got %v", err)
	}
	pid := h.propose(aliceAddr)
	if pid != 1 {
		t.Fatalf("expected first proposal id 1, got %d", pid)
	}
	p := h.proposal(pid)
	if p.VotingStartsAt-p.CreatedAt != int64(discussion.Seconds()) ||
		p.VotingEndsAt-p.VotingStartsAt != int64(voting.Seconds()) ||
		p.TimelockEndsAt-p.VotingEndsAt != int64(timelock.Seconds()) {
		t.Fatalf("unexpected windows %+v", p)
	}
	if p.QuorumBps != 5_000 || p.PassThresholdBps != 6_667 {
		t.Fatalf("thresholds not snapshotted: %+v", p)
	}
	if _, err := h.gov.ProposeUnwind(testSovereign, bobAddr); !errors.Is(err, ErrProposalOpen) {
		t.Fatalf("expected ErrProposalOpen, got %v", err)
	}
	if emitted := h.recorder.Types(); emitted[len(emitted)-1] != events.TypeProposalCreated {
		t.Fatalf("expected proposal event, got %v", emitted)
	}
}

func TestVotingWindowScenario(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)

	if _, err := h.gov.CastVote(testSovereign, pid, aliceAddr, true); !errors.Is(err, ErrVotingNotStarted) {
		t.Fatalf("expected ErrVotingNotStarted, got %v", err)
	}
	h.advance(discussion)
	receipt := h.vote(pid, aliceAddr, true)
	if receipt.WeightBps != 5_000 {
		t.Fatalf("alice weight %d", receipt.WeightBps)
	}
	if _, err := h.gov.CastVote(testSovereign, pid, aliceAddr, false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	if _, err := h.gov.CastVote(testSovereign, pid, daveAddr, true); !errors.Is(err, ErrNoVotingPower) {
		t.Fatalf("expected ErrNoVotingPower, got %v", err)
	}
	if _, err := h.gov.CastVote(testSovereign, pid, creatorAddr, true); !errors.Is(err, ErrCreatorExcluded) {
		t.Fatalf("expected ErrCreatorExcluded, got %v", err)
	}
	h.vote(pid, carolAddr, false)
	if _, _, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr); !errors.Is(err, ErrVotingInProgress) {
		t.Fatalf("expected ErrVotingInProgress, got %v", err)
	}

	h.advance(voting)
	if _, err := h.gov.CastVote(testSovereign, pid, bobAddr, true); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
	receipt, tally, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 5000 for of 7000 voted is 71.4%, above the two-thirds threshold.
	if !tally.QuorumMet || !tally.Passed || receipt.Status != ProposalStatusPassed.String() {
		t.Fatalf("unexpected tally %+v status %s", tally, receipt.Status)
	}
	p := h.proposal(pid)
	if p.VoterCount != 2 || p.VotesForBps != 5_000 || p.VotesAgainstBps != 2_000 || p.TotalVotedBps != 7_000 {
		t.Fatalf("unexpected counts %+v", p)
	}
	if _, _, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestZeroVotesFail(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)
	h.advance(discussion + voting)

	receipt, tally, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if tally.QuorumMet || receipt.Status != ProposalStatusFailed.String() {
		t.Fatalf("zero votes must fail: %+v", tally)
	}
	if next := h.propose(bobAddr); next != 2 {
		t.Fatalf("expected a new proposal with id 2, got %d", next)
	}
}

func TestExecuteUnwindCommitsTogether(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)
	h.advance(discussion)
	h.vote(pid, aliceAddr, true)
	h.vote(pid, bobAddr, true)
	h.advance(voting)
	if _, _, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := h.gov.ExecuteUnwind(testSovereign, pid, daveAddr); !errors.Is(err, ErrTimelockActive) {
		t.Fatalf("expected ErrTimelockActive, got %v", err)
	}
	h.advance(timelock)
	receipt, err := h.gov.ExecuteUnwind(testSovereign, pid, daveAddr)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.PhaseAfter != sovereign.PhaseUnwinding || receipt.ProposalID != pid {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if p := h.proposal(pid); p.Status != ProposalStatusExecuted {
		t.Fatalf("proposal status %s", p.Status)
	}
	sov, _, _ := h.state.SovereignGet(testSovereign)
	if sov.Unwind.Trigger != sovereign.UnwindTriggerGovernance || sov.Unwind.ProposalID != pid {
		t.Fatalf("unwind not tied to proposal: %+v", sov.Unwind)
	}
	seen := map[string]bool{}
	for _, typ := range h.recorder.Types() {
		seen[typ] = true
	}
	if !seen[events.TypeProposalExecuted] || !seen[events.TypeSovereignPhase] {
		t.Fatalf("missing execution events: %v", h.recorder.Types())
	}
	if _, err := h.gov.ExecuteUnwind(testSovereign, pid, daveAddr); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestExecuteFailureKeepsProposalPassed(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)
	h.advance(discussion)
	h.vote(pid, aliceAddr, true)
	h.advance(voting)
	if _, _, err := h.gov.FinalizeVote(testSovereign, pid, daveAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	h.advance(timelock)
	if _, err := h.sovereign.Halt(testSovereign, adminAddr); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if _, err := h.gov.ExecuteUnwind(testSovereign, pid, daveAddr); !errors.Is(err, sovereign.ErrInvalidPhase) {
		t.Fatalf("expected sovereign.ErrInvalidPhase, got %v", err)
	}
	if p := h.proposal(pid); p.Status != ProposalStatusPassed {
		t.Fatalf("failed execution must leave the proposal passed, got %s", p.Status)
	}
	if _, err := h.gov.CancelProposal(testSovereign, pid, daveAddr); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("halted sovereign can resume, expected ErrInvalidStatus, got %v", err)
	}
	if _, err := h.sovereign.Retire(testSovereign, adminAddr); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if _, err := h.gov.CancelProposal(testSovereign, pid, daveAddr); err != nil {
		t.Fatalf("cancel moot proposal: %v", err)
	}
}

func TestTransferredPositionVotesOnce(t *testing.T) {
	h := newHarness(t)
	mint, err := h.sovereign.MintPositionNFT(testSovereign, aliceAddr, big.NewInt(250_000_000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	h.advance(time.Minute)
	pid := h.propose(bobAddr)
	h.advance(discussion)

	receipt := h.vote(pid, aliceAddr, true)
	if receipt.WeightBps != 5_000 {
		t.Fatalf("record plus position should weigh 5000, got %d", receipt.WeightBps)
	}
	if _, err := h.sovereign.TransferPositionNFT(testSovereign, aliceAddr, mint.PositionID, daveAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := h.gov.CastVote(testSovereign, pid, daveAddr, false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	votes, err := h.gov.Votes(testSovereign, pid)
	if err != nil || len(votes) != 2 {
		t.Fatalf("expected two identity votes, got %d (%v)", len(votes), err)
	}
}

func TestPositionsChangedAfterProposalCannotVote(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)
	h.advance(time.Hour)
	mint, err := h.sovereign.MintPositionNFT(testSovereign, bobAddr, big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.sovereign.TransferPositionNFT(testSovereign, bobAddr, mint.PositionID, daveAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	h.advance(discussion)
	if _, err := h.gov.CastVote(testSovereign, pid, bobAddr, true); !errors.Is(err, ErrNoVotingPower) {
		t.Fatalf("reshaped record must not vote, got %v", err)
	}
	if _, err := h.gov.CastVote(testSovereign, pid, daveAddr, true); !errors.Is(err, ErrNoVotingPower) {
		t.Fatalf("fresh position must not vote, got %v", err)
	}
	h.vote(pid, carolAddr, true)
}

func TestCancelProposal(t *testing.T) {
	h := newHarness(t)
	pid := h.propose(aliceAddr)

	if _, err := h.gov.CancelProposal(testSovereign, pid, bobAddr); !errors.Is(err, ErrNotProposer) {
		t.Fatalf("expected ErrNotProposer, got %v", err)
	}
	receipt, err := h.gov.CancelProposal(testSovereign, pid, aliceAddr)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if receipt.Status != ProposalStatusCancelled.String() {
		t.Fatalf("status %s", receipt.Status)
	}
	next := h.propose(bobAddr)
	h.advance(discussion)
	if _, err := h.gov.CancelProposal(testSovereign, next, bobAddr); !errors.Is(err, ErrCancelWindowEnded) {
		t.Fatalf("expected ErrCancelWindowEnded, got %v", err)
	}
	views, err := h.gov.Proposals(testSovereign)
	if err != nil || len(views) != 2 || views[0].Status != "cancelled" || views[1].Status != "active" {
		t.Fatalf("unexpected proposals %+v (%v)", views, err)
	}
}
