package governance

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"sovereign/config"
	"sovereign/core/events"
	"sovereign/core/types"
	"sovereign/native/sovereign"
)

type governanceState interface {
	SovereignGet(id string) (*sovereign.Sovereign, bool, error)
	SovereignDepositGet(id string, depositor [20]byte) (*sovereign.DepositRecord, bool, error)
	SovereignPositions(id string) ([]*sovereign.PositionNFT, error)
	GovernanceProposals(sovereignID string) ([]*Proposal, error)
	GovernanceProposalGet(sovereignID string, id uint64) (*Proposal, bool, error)
	GovernanceVoteGet(sovereignID string, proposalID uint64, identity string) (*VoteRecord, bool, error)
	GovernanceVotes(sovereignID string, proposalID uint64) ([]*VoteRecord, error)
	Commit(cs *types.ChangeSet) error
}

// unwinder starts the unwind of a sovereign, committing pending together
// with the phase change.
type unwinder interface {
	BeginUnwind(id string, caller [20]byte, proposalID uint64, pending *types.ChangeSet) (*sovereign.Receipt, error)
}

// Engine runs unwind proposals for every sovereign. Proposal writes are
// serialised per sovereign.
type Engine struct {
	state     governanceState
	sovereign unwinder
	emitter   events.Emitter
	nowFn     func() time.Time
	policy    config.Governance

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine constructs a governance engine with default policy and no-op
// dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		policy:  config.DefaultProtocol().Governance,
		locks:   map[string]*sync.Mutex{},
	}
}

// SetState wires the engine to the state backend.
func (e *Engine) SetState(state governanceState) { e.state = state }

// SetSovereignEngine configures the engine that executes passed unwinds.
func (e *Engine) SetSovereignEngine(engine unwinder) { e.sovereign = engine }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
// Events of executed proposals are emitted by the sovereign engine together
// with the phase change.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetPolicy replaces the governance windows and thresholds applied to new
// proposals. Open proposals keep the values snapshotted at creation.
func (e *Engine) SetPolicy(policy config.Governance) { e.policy = policy }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().UTC().Unix()
	}
	return e.nowFn().Unix()
}

func (e *Engine) lock(sovereignID string) func() {
	e.mu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	m, ok := e.locks[sovereignID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[sovereignID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	return nil
}

func (e *Engine) loadSovereign(id string) (*sovereign.Sovereign, error) {
	sov, ok, err := e.state.SovereignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", sovereign.ErrSovereignNotFound, id)
	}
	return sov, nil
}

func (e *Engine) loadProposal(sovereignID string, id uint64) (*Proposal, error) {
	proposal, ok, err := e.state.GovernanceProposalGet(sovereignID, id)
	if err != nil {
		return nil, err
	}
	if !ok || proposal == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrProposalNotFound, sovereignID, id)
	}
	return proposal.Clone(), nil
}

func (e *Engine) commit(cs *types.ChangeSet) error {
	if err := e.state.Commit(cs); err != nil {
		return err
	}
	for _, evt := range cs.Events() {
		e.emitter.Emit(events.Envelope{Event: evt})
	}
	return nil
}

func lifecycle(typ string, p *Proposal, actor [20]byte) *types.Event {
	tally := ComputeTally(p)
	return events.ProposalLifecycle{
		Type:            typ,
		SovereignID:     p.SovereignID,
		ProposalID:      p.ID,
		Actor:           actor,
		Status:          p.Status.String(),
		VotesForBps:     p.VotesForBps,
		VotesAgainstBps: p.VotesAgainstBps,
		TotalVotedBps:   p.TotalVotedBps,
		QuorumMet:       tally.QuorumMet,
		VotingStartsAt:  p.VotingStartsAt,
		VotingEndsAt:    p.VotingEndsAt,
		TimelockEndsAt:  p.TimelockEndsAt,
	}.Event()
}

func receipt(intent string, sov *sovereign.Sovereign, caller [20]byte, p *Proposal, now int64) *sovereign.Receipt {
	return &sovereign.Receipt{
		Intent:      intent,
		SovereignID: sov.ID,
		Caller:      caller,
		PhaseBefore: sov.Phase,
		PhaseAfter:  sov.Phase,
		ProposalID:  p.ID,
		Status:      p.Status.String(),
		Timestamp:   now,
	}
}

// ProposeUnwind opens an unwind proposal. The proposer must hold a deposit
// position in a live pool and no other proposal may be open.
func (e *Engine) ProposeUnwind(sovereignID string, proposer [20]byte) (*sovereign.Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lock(sovereignID)
	defer unlock()
	sov, err := e.loadSovereign(sovereignID)
	if err != nil {
		return nil, err
	}
	if sov.Phase != sovereign.PhaseRecovery && sov.Phase != sovereign.PhaseActive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhase, sov.Phase)
	}
	if proposer == sov.Creator {
		return nil, ErrCreatorExcluded
	}
	rec, ok, err := e.state.SovereignDepositGet(sovereignID, proposer)
	if err != nil {
		return nil, err
	}
	if !ok || rec.PositionBps == 0 {
		return nil, ErrNoPosition
	}
	existing, err := e.state.GovernanceProposals(sovereignID)
	if err != nil {
		return nil, err
	}
	var lastID uint64
	for _, p := range existing {
		if p.Status.Open() {
			return nil, fmt.Errorf("%w: proposal %d is %s", ErrProposalOpen, p.ID, p.Status)
		}
		if p.ID > lastID {
			lastID = p.ID
		}
	}

	now := e.now()
	start := now + int64(e.policy.DiscussionDelaySecs)
	end := start + int64(e.policy.VotingPeriodSecs)
	proposal := &Proposal{
		SovereignID:      sovereignID,
		ID:               lastID + 1,
		Proposer:         proposer,
		Status:           ProposalStatusActive,
		QuorumBps:        e.policy.QuorumBps,
		PassThresholdBps: e.policy.PassThresholdBps,
		CreatedAt:        now,
		VotingStartsAt:   start,
		VotingEndsAt:     end,
		TimelockEndsAt:   end + int64(e.policy.TimelockSecs),
	}
	cs := types.NewChangeSet()
	cs.Put(proposal)
	cs.Emit(lifecycle(events.TypeProposalCreated, proposal, proposer))
	if err := e.commit(cs); err != nil {
		return nil, err
	}
	return receipt("proposeUnwind", sov, proposer, proposal, now), nil
}

// CastVote spends every eligible voting identity of voter on the proposal.
// A deposit record is eligible when its share layout last changed before the
// proposal opened, a position NFT when it was minted before the proposal
// opened. Each identity votes at most once, whoever holds it.
func (e *Engine) CastVote(sovereignID string, proposalID uint64, voter [20]byte, support bool) (*sovereign.Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lock(sovereignID)
	defer unlock()
	sov, err := e.loadSovereign(sovereignID)
	if err != nil {
		return nil, err
	}
	proposal, err := e.loadProposal(sovereignID, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != ProposalStatusActive {
		return nil, fmt.Errorf("%w: proposal is %s", ErrInvalidStatus, proposal.Status)
	}
	now := e.now()
	if now < proposal.VotingStartsAt {
		return nil, fmt.Errorf("%w: starts at %d", ErrVotingNotStarted, proposal.VotingStartsAt)
	}
	if now >= proposal.VotingEndsAt {
		return nil, ErrVotingClosed
	}
	if voter == sov.Creator {
		return nil, ErrCreatorExcluded
	}

	type identity struct {
		name   string
		weight uint32
	}
	var candidates []identity
	rec, ok, err := e.state.SovereignDepositGet(sovereignID, voter)
	if err != nil {
		return nil, err
	}
	if ok && rec.FreeBps() > 0 && rec.LastPositionChange < proposal.CreatedAt {
		candidates = append(candidates, identity{name: RecordIdentity(voter), weight: rec.FreeBps()})
	}
	positions, err := e.state.SovereignPositions(sovereignID)
	if err != nil {
		return nil, err
	}
	sort.Slice(positions, func(i, j int) bool {
		return string(positions[i].ID[:]) < string(positions[j].ID[:])
	})
	for _, pos := range positions {
		if pos.Owner != voter || pos.MintedAt >= proposal.CreatedAt || pos.SharesBps == 0 {
			continue
		}
		candidates = append(candidates, identity{name: NFTIdentity(pos.ID), weight: pos.SharesBps})
	}
	if len(candidates) == 0 {
		return nil, ErrNoVotingPower
	}

	cs := types.NewChangeSet()
	var weight uint32
	used := 0
	for _, c := range candidates {
		_, voted, err := e.state.GovernanceVoteGet(sovereignID, proposalID, c.name)
		if err != nil {
			return nil, err
		}
		if voted {
			continue
		}
		cs.Put(&VoteRecord{
			SovereignID: sovereignID,
			ProposalID:  proposalID,
			Identity:    c.name,
			Voter:       voter,
			Support:     support,
			WeightBps:   c.weight,
			CastAt:      now,
		})
		weight += c.weight
		used++
	}
	if used == 0 {
		return nil, ErrAlreadyVoted
	}
	total := proposal.TotalVotedBps + weight
	if total > 10_000 || total < proposal.TotalVotedBps {
		return nil, fmt.Errorf("%w: %d bps", ErrTallyOverflow, total)
	}
	if support {
		proposal.VotesForBps += weight
	} else {
		proposal.VotesAgainstBps += weight
	}
	proposal.TotalVotedBps = total
	proposal.VoterCount++
	cs.Put(proposal)
	cs.Emit(events.VoteCast{
		SovereignID: sovereignID,
		ProposalID:  proposalID,
		Voter:       voter,
		Support:     support,
		WeightBps:   weight,
		Identities:  used,
	}.Event())
	if err := e.commit(cs); err != nil {
		return nil, err
	}
	out := receipt("castVote", sov, voter, proposal, now)
	out.WeightBps = weight
	return out, nil
}

// FinalizeVote closes voting once the window has ended. Anyone may call it.
func (e *Engine) FinalizeVote(sovereignID string, proposalID uint64, caller [20]byte) (*sovereign.Receipt, *Tally, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	unlock := e.lock(sovereignID)
	defer unlock()
	sov, err := e.loadSovereign(sovereignID)
	if err != nil {
		return nil, nil, err
	}
	proposal, err := e.loadProposal(sovereignID, proposalID)
	if err != nil {
		return nil, nil, err
	}
	if proposal.Status != ProposalStatusActive {
		return nil, nil, fmt.Errorf("%w: proposal is %s", ErrInvalidStatus, proposal.Status)
	}
	now := e.now()
	if now < proposal.VotingEndsAt {
		return nil, nil, fmt.Errorf("%w: ends at %d", ErrVotingInProgress, proposal.VotingEndsAt)
	}
	tally := ComputeTally(proposal)
	proposal.Status = ProposalStatusFailed
	if tally.Passed {
		proposal.Status = ProposalStatusPassed
	}
	proposal.FinalizedAt = now
	cs := types.NewChangeSet()
	cs.Put(proposal)
	cs.Emit(lifecycle(events.TypeProposalFinalized, proposal, caller))
	if err := e.commit(cs); err != nil {
		return nil, nil, err
	}
	return receipt("finalizeVote", sov, caller, proposal, now), &tally, nil
}

// ExecuteUnwind starts the unwind of a passed proposal once its timelock has
// elapsed. The proposal status and the sovereign phase change commit
// together.
func (e *Engine) ExecuteUnwind(sovereignID string, proposalID uint64, caller [20]byte) (*sovereign.Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.sovereign == nil {
		return nil, errSovereignNotConfigured
	}
	unlock := e.lock(sovereignID)
	defer unlock()
	proposal, err := e.loadProposal(sovereignID, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != ProposalStatusPassed {
		return nil, fmt.Errorf("%w: proposal is %s", ErrInvalidStatus, proposal.Status)
	}
	now := e.now()
	if now < proposal.TimelockEndsAt {
		return nil, fmt.Errorf("%w: ends at %d", ErrTimelockActive, proposal.TimelockEndsAt)
	}
	proposal.Status = ProposalStatusExecuted
	proposal.ExecutedAt = now
	pending := types.NewChangeSet()
	pending.Put(proposal)
	pending.Emit(lifecycle(events.TypeProposalExecuted, proposal, caller))
	out, err := e.sovereign.BeginUnwind(sovereignID, caller, proposalID, pending)
	if err != nil {
		return nil, err
	}
	out.Status = proposal.Status.String()
	return out, nil
}

// CancelProposal withdraws a proposal. The proposer may cancel before voting
// starts; anyone may cancel a passed proposal whose sovereign can no longer
// be unwound.
func (e *Engine) CancelProposal(sovereignID string, proposalID uint64, caller [20]byte) (*sovereign.Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lock(sovereignID)
	defer unlock()
	sov, err := e.loadSovereign(sovereignID)
	if err != nil {
		return nil, err
	}
	proposal, err := e.loadProposal(sovereignID, proposalID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	switch proposal.Status {
	case ProposalStatusActive:
		if caller != proposal.Proposer {
			return nil, ErrNotProposer
		}
		if now >= proposal.VotingStartsAt {
			return nil, ErrCancelWindowEnded
		}
	case ProposalStatusPassed:
		if sov.Phase != sovereign.PhaseUnwound && sov.Phase != sovereign.PhaseRetired {
			return nil, fmt.Errorf("%w: passed proposal still executable in phase %s", ErrInvalidStatus, sov.Phase)
		}
	default:
		return nil, fmt.Errorf("%w: proposal is %s", ErrInvalidStatus, proposal.Status)
	}
	proposal.Status = ProposalStatusCancelled
	cs := types.NewChangeSet()
	cs.Put(proposal)
	cs.Emit(lifecycle(events.TypeProposalCancelled, proposal, caller))
	if err := e.commit(cs); err != nil {
		return nil, err
	}
	return receipt("cancelProposal", sov, caller, proposal, now), nil
}

// Proposal returns the committed projection of a proposal.
func (e *Engine) Proposal(sovereignID string, proposalID uint64) (*ProposalView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	proposal, err := e.loadProposal(sovereignID, proposalID)
	if err != nil {
		return nil, err
	}
	return NewProposalView(proposal), nil
}

// Proposals lists every proposal of a sovereign in id order.
func (e *Engine) Proposals(sovereignID string) ([]*ProposalView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stored, err := e.state.GovernanceProposals(sovereignID)
	if err != nil {
		return nil, err
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })
	out := make([]*ProposalView, 0, len(stored))
	for _, p := range stored {
		out = append(out, NewProposalView(p))
	}
	return out, nil
}

// Votes lists the vote records of a proposal.
func (e *Engine) Votes(sovereignID string, proposalID uint64) ([]*VoteRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	votes, err := e.state.GovernanceVotes(sovereignID, proposalID)
	if err != nil {
		return nil, err
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].Identity < votes[j].Identity })
	return votes, nil
}
