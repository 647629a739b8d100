package sovereign

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"sovereign/config"
	"sovereign/core/events"
	"sovereign/core/types"
	"sovereign/crypto"
)

// TreasuryLabel derives the default protocol treasury address.
const TreasuryLabel = "sovereign/treasury"

type engineState interface {
	SovereignGet(id string) (*Sovereign, bool, error)
	SovereignIDs() ([]string, error)
	SovereignDepositGet(id string, depositor [20]byte) (*DepositRecord, bool, error)
	SovereignDeposits(id string) ([]*DepositRecord, error)
	SovereignPositionGet(id string, positionID [32]byte) (*PositionNFT, bool, error)
	SovereignPositions(id string) ([]*PositionNFT, error)
	AccountGet(addr [20]byte) (*types.Account, error)
	HoldingGet(id string, owner [20]byte) (*types.Holding, error)
	Commit(cs *types.ChangeSet) error
}

// Engine executes sovereign intents. Every intent holds the sovereign's lock,
// stages its writes on copies and commits them in one change set.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	nowFn    func() time.Time
	protocol config.Protocol
	treasury [20]byte
	admins   map[[20]byte]struct{}

	sovereignLocks keyedMutex
	accountLocks   keyedMutex
}

// NewEngine constructs an engine with default protocol settings and no-op
// dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() time.Time { return time.Now().UTC() },
		protocol: config.DefaultProtocol(),
		treasury: crypto.DeriveAddress(TreasuryLabel),
		admins:   map[[20]byte]struct{}{},
	}
}

// SetState wires the engine to the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
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

// SetProtocol replaces the protocol configuration used for new decisions.
func (e *Engine) SetProtocol(protocol config.Protocol) { e.protocol = protocol }

// Protocol returns the active protocol configuration.
func (e *Engine) Protocol() config.Protocol { return e.protocol }

// SetTreasury sets the account credited with creation fees.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// Treasury returns the creation fee recipient.
func (e *Engine) Treasury() [20]byte { return e.treasury }

// SetAdmins replaces the set of addresses allowed to halt, resume and retire.
func (e *Engine) SetAdmins(admins ...[20]byte) {
	e.admins = make(map[[20]byte]struct{}, len(admins))
	for _, admin := range admins {
		e.admins[admin] = struct{}{}
	}
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now().UTC()
	}
	return e.nowFn()
}

func (e *Engine) isAdmin(addr [20]byte) bool {
	_, ok := e.admins[addr]
	return ok
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// txn stages one intent. Loaded records are cached so repeated access sees
// earlier staged changes; nothing reaches the store until commit.
type txn struct {
	e       *Engine
	now     int64
	sov     *Sovereign
	before  Phase
	cs      *types.ChangeSet
	unlocks []func()

	accounts     map[[20]byte]*types.Account
	accountOrder [][20]byte
	holdings     map[[20]byte]*types.Holding
	holdingOrder [][20]byte
	records      map[[20]byte]*DepositRecord
	recordOrder  [][20]byte
	removed      map[[20]byte]bool
	positions    map[[32]byte]*PositionNFT
	posOrder     [][32]byte
	burned       map[[32]byte]bool
}

// begin locks the sovereign and loads it. pending carries writes staged by a
// caller (governance) that must commit together with this intent.
func (e *Engine) begin(id string, pending *types.ChangeSet) (*txn, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	unlock := e.sovereignLocks.lock(id)
	sov, ok, err := e.state.SovereignGet(id)
	if err != nil {
		unlock()
		return nil, err
	}
	if !ok {
		unlock()
		return nil, fmt.Errorf("%w: %s", ErrSovereignNotFound, id)
	}
	tx := e.newTxn(pending)
	tx.unlocks = append(tx.unlocks, unlock)
	tx.sov = sov.Clone()
	tx.before = sov.Phase
	return tx, nil
}

func (e *Engine) newTxn(pending *types.ChangeSet) *txn {
	cs := pending
	if cs == nil {
		cs = types.NewChangeSet()
	}
	return &txn{
		e:         e,
		now:       e.now().Unix(),
		cs:        cs,
		accounts:  map[[20]byte]*types.Account{},
		holdings:  map[[20]byte]*types.Holding{},
		records:   map[[20]byte]*DepositRecord{},
		removed:   map[[20]byte]bool{},
		positions: map[[32]byte]*PositionNFT{},
		burned:    map[[32]byte]bool{},
	}
}

func (tx *txn) release() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
	tx.unlocks = nil
}

// account loads an account under its lock. Every intent touches at most one
// external account plus the treasury, and the treasury is only touched by
// intents that touch no other account, so lock order cannot invert.
func (tx *txn) account(addr [20]byte) (*types.Account, error) {
	if acct, ok := tx.accounts[addr]; ok {
		return acct, nil
	}
	tx.unlocks = append(tx.unlocks, tx.e.accountLocks.lock(string(addr[:])))
	acct, err := tx.e.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	acct = acct.Copy()
	tx.accounts[addr] = acct
	tx.accountOrder = append(tx.accountOrder, addr)
	return acct, nil
}

func (tx *txn) debit(addr [20]byte, amount *big.Int) error {
	acct, err := tx.account(addr)
	if err != nil {
		return err
	}
	if acct.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientFunds, acct.Balance, amount)
	}
	acct.Balance.Sub(acct.Balance, amount)
	acct.Nonce++
	return nil
}

func (tx *txn) credit(addr [20]byte, amount *big.Int) error {
	acct, err := tx.account(addr)
	if err != nil {
		return err
	}
	acct.Balance.Add(acct.Balance, amount)
	acct.Nonce++
	return nil
}

func (tx *txn) holding(owner [20]byte) (*types.Holding, error) {
	if h, ok := tx.holdings[owner]; ok {
		return h, nil
	}
	h, err := tx.e.state.HoldingGet(tx.sov.ID, owner)
	if err != nil {
		return nil, err
	}
	out := &types.Holding{SovereignID: tx.sov.ID, Owner: owner, Amount: big.NewInt(0)}
	if h != nil && h.Amount != nil {
		out.Amount.Set(h.Amount)
	}
	tx.holdings[owner] = out
	tx.holdingOrder = append(tx.holdingOrder, owner)
	return out, nil
}

func (tx *txn) record(depositor [20]byte) (*DepositRecord, bool, error) {
	if tx.removed[depositor] {
		return nil, false, nil
	}
	if rec, ok := tx.records[depositor]; ok {
		return rec, true, nil
	}
	rec, ok, err := tx.e.state.SovereignDepositGet(tx.sov.ID, depositor)
	if err != nil || !ok {
		return nil, false, err
	}
	return tx.trackRecord(rec.Clone()), true, nil
}

func (tx *txn) trackRecord(rec *DepositRecord) *DepositRecord {
	if _, ok := tx.records[rec.Depositor]; !ok {
		tx.recordOrder = append(tx.recordOrder, rec.Depositor)
	}
	tx.records[rec.Depositor] = rec
	delete(tx.removed, rec.Depositor)
	return rec
}

func (tx *txn) removeRecord(rec *DepositRecord) {
	tx.trackRecord(rec)
	tx.removed[rec.Depositor] = true
}

// allRecords returns every committed record merged with staged changes.
func (tx *txn) allRecords() ([]*DepositRecord, error) {
	stored, err := tx.e.state.SovereignDeposits(tx.sov.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*DepositRecord, 0, len(stored))
	for _, rec := range stored {
		if tx.removed[rec.Depositor] {
			continue
		}
		if staged, ok := tx.records[rec.Depositor]; ok {
			out = append(out, staged)
			continue
		}
		out = append(out, tx.trackRecord(rec.Clone()))
	}
	return out, nil
}

func (tx *txn) position(id [32]byte) (*PositionNFT, bool, error) {
	if tx.burned[id] {
		return nil, false, nil
	}
	if pos, ok := tx.positions[id]; ok {
		return pos, true, nil
	}
	pos, ok, err := tx.e.state.SovereignPositionGet(tx.sov.ID, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return tx.trackPosition(pos.Clone()), true, nil
}

func (tx *txn) trackPosition(pos *PositionNFT) *PositionNFT {
	if _, ok := tx.positions[pos.ID]; !ok {
		tx.posOrder = append(tx.posOrder, pos.ID)
	}
	tx.positions[pos.ID] = pos
	delete(tx.burned, pos.ID)
	return pos
}

func (tx *txn) burnPosition(pos *PositionNFT) {
	tx.trackPosition(pos)
	tx.burned[pos.ID] = true
}

// ownedPositions lists positions held by owner, staged state included.
func (tx *txn) ownedPositions(owner [20]byte) ([]*PositionNFT, error) {
	stored, err := tx.e.state.SovereignPositions(tx.sov.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[[32]byte]struct{}, len(stored))
	out := make([]*PositionNFT, 0)
	for _, pos := range stored {
		seen[pos.ID] = struct{}{}
		current, ok, err := tx.position(pos.ID)
		if err != nil {
			return nil, err
		}
		if ok && current.Owner == owner {
			out = append(out, current)
		}
	}
	for _, id := range tx.posOrder {
		if _, ok := seen[id]; ok || tx.burned[id] {
			continue
		}
		if pos := tx.positions[id]; pos.Owner == owner {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (tx *txn) setPhase(next Phase, reason string) {
	if tx.sov.Phase == next {
		return
	}
	tx.cs.Emit(events.PhaseChanged{
		SovereignID: tx.sov.ID,
		From:        tx.sov.Phase.String(),
		To:          next.String(),
		Reason:      reason,
	}.Event())
	tx.sov.Phase = next
}

func (tx *txn) receipt(intent string, caller [20]byte) *Receipt {
	return &Receipt{
		Intent:      intent,
		SovereignID: tx.sov.ID,
		Caller:      caller,
		PhaseBefore: tx.before,
		PhaseAfter:  tx.sov.Phase,
		Timestamp:   tx.now,
	}
}

// commit stages every touched record in load order and writes the set.
func (tx *txn) commit() error {
	if tx.sov != nil {
		tx.cs.Put(tx.sov)
	}
	for _, addr := range tx.accountOrder {
		tx.cs.Put(&AccountEntry{Address: addr, Account: tx.accounts[addr]})
	}
	for _, owner := range tx.holdingOrder {
		tx.cs.Put(tx.holdings[owner])
	}
	for _, depositor := range tx.recordOrder {
		if tx.removed[depositor] {
			tx.cs.Remove(tx.records[depositor])
			continue
		}
		tx.cs.Put(tx.records[depositor])
	}
	for _, id := range tx.posOrder {
		if tx.burned[id] {
			tx.cs.Remove(tx.positions[id])
			continue
		}
		tx.cs.Put(tx.positions[id])
	}
	if err := tx.e.state.Commit(tx.cs); err != nil {
		return err
	}
	for _, evt := range tx.cs.Events() {
		tx.e.emitter.Emit(events.Envelope{Event: evt})
	}
	return nil
}

// AccountEntry pairs an account with its address for persistence.
type AccountEntry struct {
	Address [20]byte
	Account *types.Account
}

// Fund credits base currency arriving from outside the ledger, for example
// from a bridge or faucet.
func (e *Engine) Fund(addr [20]byte, amount *big.Int) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if addr == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	tx := e.newTxn(nil)
	defer tx.release()
	if err := tx.credit(addr, amount); err != nil {
		return nil, err
	}
	acct := tx.accounts[addr]
	tx.cs.Emit(events.AccountCredited{Account: addr, Amount: amount, Balance: acct.Balance}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return acct.Copy(), nil
}
