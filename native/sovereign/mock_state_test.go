package sovereign

import (
	"fmt"
	"math/big"
	"sort"

	"sovereign/core/types"
)

type mockState struct {
	sovereigns map[string]*Sovereign
	deposits   map[string]map[[20]byte]*DepositRecord
	positions  map[string]map[[32]byte]*PositionNFT
	accounts   map[[20]byte]*types.Account
	holdings   map[string]map[[20]byte]*big.Int
	commits    int
	failCommit error
}

func newMockState() *mockState {
	return &mockState{
		sovereigns: make(map[string]*Sovereign),
		deposits:   make(map[string]map[[20]byte]*DepositRecord),
		positions:  make(map[string]map[[32]byte]*PositionNFT),
		accounts:   make(map[[20]byte]*types.Account),
		holdings:   make(map[string]map[[20]byte]*big.Int),
	}
}

func (m *mockState) SovereignGet(id string) (*Sovereign, bool, error) {
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

func (m *mockState) SovereignDepositGet(id string, depositor [20]byte) (*DepositRecord, bool, error) {
	rec, ok := m.deposits[id][depositor]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockState) SovereignDeposits(id string) ([]*DepositRecord, error) {
	out := make([]*DepositRecord, 0, len(m.deposits[id]))
	for _, rec := range m.deposits[id] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Depositor[:]) < string(out[j].Depositor[:])
	})
	return out, nil
}

func (m *mockState) SovereignPositionGet(id string, positionID [32]byte) (*PositionNFT, bool, error) {
	pos, ok := m.positions[id][positionID]
	if !ok {
		return nil, false, nil
	}
	return pos.Clone(), true, nil
}

func (m *mockState) SovereignPositions(id string) ([]*PositionNFT, error) {
	out := make([]*PositionNFT, 0, len(m.positions[id]))
	for _, pos := range m.positions[id] {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
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

func (m *mockState) Commit(cs *types.ChangeSet) error {
	if m.failCommit != nil {
		return m.failCommit
	}
	for _, mut := range cs.Mutations() {
		switch rec := mut.Record.(type) {
		case *Sovereign:
			m.sovereigns[rec.ID] = rec.Clone()
		case *AccountEntry:
			m.accounts[rec.Address] = rec.Account.Copy()
		case *types.Holding:
			if m.holdings[rec.SovereignID] == nil {
				m.holdings[rec.SovereignID] = make(map[[20]byte]*big.Int)
			}
			m.holdings[rec.SovereignID][rec.Owner] = new(big.Int).Set(rec.Amount)
		case *DepositRecord:
			if mut.Delete {
				delete(m.deposits[rec.SovereignID], rec.Depositor)
				continue
			}
			if m.deposits[rec.SovereignID] == nil {
				m.deposits[rec.SovereignID] = make(map[[20]byte]*DepositRecord)
			}
			m.deposits[rec.SovereignID][rec.Depositor] = rec.Clone()
		case *PositionNFT:
			if mut.Delete {
				delete(m.positions[rec.SovereignID], rec.ID)
				continue
			}
			if m.positions[rec.SovereignID] == nil {
				m.positions[rec.SovereignID] = make(map[[32]byte]*PositionNFT)
			}
			m.positions[rec.SovereignID][rec.ID] = rec.Clone()
		default:
			return fmt.Errorf("mock state: unexpected record %T", mut.Record)
		}
	}
	m.commits++
	return nil
}
