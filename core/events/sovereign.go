package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"sovereign/core/types"
	"sovereign/crypto"
)

const (
	TypeSovereignCreated    = "sovereign.created"
	TypeSovereignDeposit    = "sovereign.deposit"
	TypeSovereignWithdrawal = "sovereign.withdrawal"
	TypeSovereignPhase      = "sovereign.phase"
	TypeSovereignTrade      = "sovereign.trade"
	TypeSovereignFeesClaim  = "sovereign.fees_claimed"
	TypeSovereignPosition   = "sovereign.position"
	TypeSovereignPayout     = "sovereign.payout"
	TypeAccountCredited     = "account.credited"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.Address(addr).String()
}

// SovereignCreated is emitted when a sovereign opens its bonding phase.
type SovereignCreated struct {
	SovereignID string
	Creator     [20]byte
	BondTarget  *big.Int
	Deadline    int64
	TotalSupply *big.Int
	BinCount    uint32
}

func (SovereignCreated) EventType() string { return TypeSovereignCreated }

func (e SovereignCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignCreated,
		Attributes: map[string]string{
			"sovereign":   e.SovereignID,
			"creator":     addressString(e.Creator),
			"bondTarget":  amountString(e.BondTarget),
			"deadline":    strconv.FormatInt(e.Deadline, 10),
			"totalSupply": amountString(e.TotalSupply),
			"binCount":    strconv.FormatUint(uint64(e.BinCount), 10),
		},
	}
}

// DepositChanged covers deposits and bonding withdrawals.
type DepositChanged struct {
	SovereignID    string
	Depositor      [20]byte
	Amount         *big.Int
	RecordAmount   *big.Int
	TotalDeposited *big.Int
	Withdrawal     bool
}

func (e DepositChanged) EventType() string {
	if e.Withdrawal {
		return TypeSovereignWithdrawal
	}
	return TypeSovereignDeposit
}

func (e DepositChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"sovereign":      e.SovereignID,
			"depositor":      addressString(e.Depositor),
			"amount":         amountString(e.Amount),
			"recordAmount":   amountString(e.RecordAmount),
			"totalDeposited": amountString(e.TotalDeposited),
		},
	}
}

// PhaseChanged records a lifecycle transition.
type PhaseChanged struct {
	SovereignID string
	From        string
	To          string
	Reason      string
}

func (PhaseChanged) EventType() string { return TypeSovereignPhase }

func (e PhaseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignPhase,
		Attributes: map[string]string{
			"sovereign": e.SovereignID,
			"from":      e.From,
			"to":        e.To,
			"reason":    strings.TrimSpace(e.Reason),
		},
	}
}

// Trade records an executed buy or sell.
type Trade struct {
	SovereignID string
	Trader      [20]byte
	Side        string
	BaseAmount  *big.Int
	AssetAmount *big.Int
	Fee         *big.Int
	LpFee       *big.Int
	CreatorFee  *big.Int
	BinBonus    *big.Int
	Phase       string
}

func (Trade) EventType() string { return TypeSovereignTrade }

func (e Trade) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignTrade,
		Attributes: map[string]string{
			"sovereign":   e.SovereignID,
			"trader":      addressString(e.Trader),
			"side":        e.Side,
			"baseAmount":  amountString(e.BaseAmount),
			"assetAmount": amountString(e.AssetAmount),
			"fee":         amountString(e.Fee),
			"lpFee":       amountString(e.LpFee),
			"creatorFee":  amountString(e.CreatorFee),
			"binBonus":    amountString(e.BinBonus),
			"phase":       e.Phase,
		},
	}
}

// FeesClaimed records an LP or creator fee claim.
type FeesClaimed struct {
	SovereignID string
	Claimant    [20]byte
	Kind        string
	Amount      *big.Int
}

func (FeesClaimed) EventType() string { return TypeSovereignFeesClaim }

func (e FeesClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignFeesClaim,
		Attributes: map[string]string{
			"sovereign": e.SovereignID,
			"claimant":  addressString(e.Claimant),
			"kind":      e.Kind,
			"amount":    amountString(e.Amount),
		},
	}
}

// PositionChanged records a position NFT mint, burn or transfer.
type PositionChanged struct {
	SovereignID string
	Action      string
	PositionID  [32]byte
	From        [20]byte
	To          [20]byte
	SharesBps   uint32
}

func (PositionChanged) EventType() string { return TypeSovereignPosition }

func (e PositionChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignPosition,
		Attributes: map[string]string{
			"sovereign": e.SovereignID,
			"action":    e.Action,
			"position":  hex.EncodeToString(e.PositionID[:]),
			"from":      addressString(e.From),
			"to":        addressString(e.To),
			"sharesBps": strconv.FormatUint(uint64(e.SharesBps), 10),
		},
	}
}

// Payout records refunds and unwind distributions.
type Payout struct {
	SovereignID string
	Recipient   [20]byte
	Kind        string
	Amount      *big.Int
}

func (Payout) EventType() string { return TypeSovereignPayout }

func (e Payout) Event() *types.Event {
	return &types.Event{
		Type: TypeSovereignPayout,
		Attributes: map[string]string{
			"sovereign": e.SovereignID,
			"recipient": addressString(e.Recipient),
			"kind":      e.Kind,
			"amount":    amountString(e.Amount),
		},
	}
}

// AccountCredited records base currency entering the ledger from outside.
type AccountCredited struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
}

func (AccountCredited) EventType() string { return TypeAccountCredited }

func (e AccountCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeAccountCredited,
		Attributes: map[string]string{
			"account": addressString(e.Account),
			"amount":  amountString(e.Amount),
			"balance": amountString(e.Balance),
		},
	}
}
