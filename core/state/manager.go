package state

import (
	"errors"
	"fmt"
	"sort"

	"sovereign/core/types"
	"sovereign/native/governance"
	"sovereign/native/sovereign"
	"sovereign/storage"
)

// Manager persists sovereign and governance records on a key-value store.
// Reads return fresh copies and every change set lands in one batch write.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Close releases the underlying database.
func (m *Manager) Close() {
	if m != nil && m.db != nil {
		m.db.Close()
	}
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SovereignGet loads a sovereign together with its pool.
func (m *Manager) SovereignGet(id string) (*sovereign.Sovereign, bool, error) {
	data, ok, err := m.get(sovereignKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	sov, err := decodeSovereign(data)
	if err != nil {
		return nil, false, err
	}
	return sov, true, nil
}

// SovereignIDs lists every registered sovereign in lexical order.
func (m *Manager) SovereignIDs() ([]string, error) {
	var (
		ids     []string
		walkErr error
	)
	err := m.db.Iterate(sovereignPrefix, func(_, value []byte) bool {
		sov, err := decodeSovereign(value)
		if err != nil {
			walkErr = err
			return false
		}
		ids = append(ids, sov.ID)
		return true
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(ids)
	return ids, nil
}

// SovereignDepositGet loads the deposit record of one depositor.
func (m *Manager) SovereignDepositGet(id string, depositor [20]byte) (*sovereign.DepositRecord, bool, error) {
	data, ok, err := m.get(depositKey(id, depositor))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := decodeDeposit(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// SovereignDeposits lists deposit records ordered by depositor address.
func (m *Manager) SovereignDeposits(id string) ([]*sovereign.DepositRecord, error) {
	out := make([]*sovereign.DepositRecord, 0)
	err := m.scan(depositScan(id), func(value []byte) error {
		rec, err := decodeDeposit(value)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// SovereignPositionGet loads a position NFT.
func (m *Manager) SovereignPositionGet(id string, positionID [32]byte) (*sovereign.PositionNFT, bool, error) {
	data, ok, err := m.get(positionKey(id, positionID))
	if err != nil || !ok {
		return nil, false, err
	}
	pos, err := decodePosition(data)
	if err != nil {
		return nil, false, err
	}
	return pos, true, nil
}

// SovereignPositions lists position NFTs ordered by identifier.
func (m *Manager) SovereignPositions(id string) ([]*sovereign.PositionNFT, error) {
	out := make([]*sovereign.PositionNFT, 0)
	err := m.scan(positionScan(id), func(value []byte) error {
		pos, err := decodePosition(value)
		if err != nil {
			return err
		}
		out = append(out, pos)
		return nil
	})
	return out, err
}

// AccountGet returns the account of addr, or a zero account when none was
// written yet.
func (m *Manager) AccountGet(addr [20]byte) (*types.Account, error) {
	data, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	return decodeAccount(data)
}

// HoldingGet returns the asset balance of owner, zero when absent.
func (m *Manager) HoldingGet(id string, owner [20]byte) (*types.Holding, error) {
	data, ok, err := m.get(holdingKey(id, owner))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Holding{SovereignID: id, Owner: owner, Amount: orZero(nil)}, nil
	}
	return decodeHolding(data)
}

// GovernanceProposals lists the proposals of a sovereign by ascending ID.
func (m *Manager) GovernanceProposals(sovereignID string) ([]*governance.Proposal, error) {
	out := make([]*governance.Proposal, 0)
	err := m.scan(proposalScan(sovereignID), func(value []byte) error {
		p, err := decodeProposal(value)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// GovernanceProposalGet loads one proposal.
func (m *Manager) GovernanceProposalGet(sovereignID string, id uint64) (*governance.Proposal, bool, error) {
	data, ok, err := m.get(proposalKey(sovereignID, id))
	if err != nil || !ok {
		return nil, false, err
	}
	p, err := decodeProposal(data)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// GovernanceVoteGet loads the vote cast by one identity.
func (m *Manager) GovernanceVoteGet(sovereignID string, proposalID uint64, identity string) (*governance.VoteRecord, bool, error) {
	data, ok, err := m.get(voteKey(sovereignID, proposalID, identity))
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := decodeVote(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GovernanceVotes lists the votes on a proposal ordered by identity.
func (m *Manager) GovernanceVotes(sovereignID string, proposalID uint64) ([]*governance.VoteRecord, error) {
	out := make([]*governance.VoteRecord, 0)
	err := m.scan(voteScan(sovereignID, proposalID), func(value []byte) error {
		v, err := decodeVote(value)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (m *Manager) scan(prefix []byte, fn func(value []byte) error) error {
	var walkErr error
	err := m.db.Iterate(prefix, func(_, value []byte) bool {
		if err := fn(value); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return walkErr
}

// Commit applies every mutation of the change set in one atomic batch.
func (m *Manager) Commit(cs *types.ChangeSet) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	batch := storage.NewBatch()
	for _, mut := range cs.Mutations() {
		key, value, err := encodeMutation(mut.Record)
		if err != nil {
			return err
		}
		if mut.Delete {
			batch.Delete(key)
			continue
		}
		batch.Put(key, value)
	}
	if batch.Len() == 0 {
		return nil
	}
	return m.db.Write(batch)
}

func encodeMutation(record any) ([]byte, []byte, error) {
	var (
		key   []byte
		value []byte
		err   error
	)
	switch rec := record.(type) {
	case *sovereign.Sovereign:
		key = sovereignKey(rec.ID)
		value, err = encodeRecord(KindSovereign, newStoredSovereign(rec))
	case *sovereign.AccountEntry:
		key = accountKey(rec.Address)
		value, err = encodeRecord(KindAccount, rec.Account)
	case *types.Holding:
		key = holdingKey(rec.SovereignID, rec.Owner)
		value, err = encodeRecord(KindHolding, rec)
	case *sovereign.DepositRecord:
		key = depositKey(rec.SovereignID, rec.Depositor)
		value, err = encodeRecord(KindDeposit, newStoredDeposit(rec))
	case *sovereign.PositionNFT:
		key = positionKey(rec.SovereignID, rec.ID)
		value, err = encodeRecord(KindPosition, newStoredPosition(rec))
	case *governance.Proposal:
		key = proposalKey(rec.SovereignID, rec.ID)
		value, err = encodeRecord(KindProposal, newStoredProposal(rec))
	case *governance.VoteRecord:
		key = voteKey(rec.SovereignID, rec.ProposalID, rec.Identity)
		value, err = encodeRecord(KindVote, newStoredVote(rec))
	default:
		return nil, nil, fmt.Errorf("state: unsupported record %T", record)
	}
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// Walk decodes every stored record in key order. Returning false from fn
// stops the walk.
func (m *Manager) Walk(fn func(kind RecordKind, record any) bool) error {
	prefixes := [][]byte{
		sovereignPrefix, depositPrefix, positionPrefix, holdingPrefix,
		accountPrefix, proposalPrefix, votePrefix,
	}
	for _, prefix := range prefixes {
		err := m.scan(prefix, func(value []byte) error {
			kind, record, err := DecodeRecord(value)
			if err != nil {
				return err
			}
			if !fn(kind, record) {
				return errStopWalk
			}
			return nil
		})
		if errors.Is(err, errStopWalk) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var errStopWalk = errors.New("state: walk stopped")
