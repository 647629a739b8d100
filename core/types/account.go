package types

import "math/big"

// Account is the base-currency balance of an address. Deposits, purchases,
// claims and refunds all settle against it.
type Account struct {
	Balance *big.Int `json:"balance"`
	// Nonce counts settled intents and lets clients detect replays.
	Nonce uint64 `json:"nonce"`
}

// NewAccount returns a zero-balance account.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return NewAccount()
	}
	out := &Account{Balance: big.NewInt(0), Nonce: a.Nonce}
	if a.Balance != nil {
		out.Balance.Set(a.Balance)
	}
	return out
}

// Holding is the asset balance of an address inside one sovereign pool.
type Holding struct {
	SovereignID string   `json:"sovereignId"`
	Owner       [20]byte `json:"owner"`
	Amount      *big.Int `json:"amount"`
}
