package server

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sovereign/crypto"
	"sovereign/native/common"
	"sovereign/native/governance"
	"sovereign/native/sovereign"
	"sovereign/services/sovereignd/journal"
)

const (
	moduleSovereign  = "sovereign"
	moduleGovernance = "governance"
	moduleAdmin      = "admin"
)

type intentFunc func(r *http.Request) (*sovereign.Receipt, *governance.Tally, error)

type intentResponse struct {
	ReceiptID string                 `json:"receiptId,omitempty"`
	Receipt   *sovereign.ReceiptView `json:"receipt"`
	Tally     *governance.Tally      `json:"tally,omitempty"`
}

// intent wraps a state-changing call with the module guard, metrics and the
// receipt journal. The journal write happens after the engine commit, so a
// journal failure is logged and the receipt is still returned.
func (s *Server) intent(name, module string, fn intentFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		receipt, tally, err := s.runIntent(r, module, fn)
		s.metrics.ObserveIntent(name, outcomeFor(err), time.Since(start))
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				s.logger.Error("intent failed", "intent", name, "error", err)
			}
			writeError(w, err)
			return
		}

		resp := intentResponse{Receipt: sovereign.NewReceiptView(receipt), Tally: tally}
		if s.journal != nil {
			entry, jerr := s.journal.Record(r.Context(), receipt)
			if jerr != nil {
				s.metrics.RecordJournalWrite(false)
				s.logger.Error("journal write failed", "intent", name, "sovereign", receipt.SovereignID, "error", jerr)
			} else {
				s.metrics.RecordJournalWrite(true)
				resp.ReceiptID = entry.ID.String()
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) runIntent(r *http.Request, module string, fn intentFunc) (*sovereign.Receipt, *governance.Tally, error) {
	if err := common.Guard(s.pauses, module); err != nil {
		return nil, nil, err
	}
	return fn(r)
}

func receiptOnly(receipt *sovereign.Receipt, err error) (*sovereign.Receipt, *governance.Tally, error) {
	return receipt, nil, err
}

// Request bodies. Amounts travel as base-10 strings.

type callerRequest struct {
	Caller crypto.Address `json:"caller"`
}

type amountRequest struct {
	Caller crypto.Address `json:"caller"`
	Amount string         `json:"amount"`
}

type createRequest struct {
	Caller             crypto.Address `json:"caller"`
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Symbol             string         `json:"symbol"`
	BondTarget         string         `json:"bondTarget"`
	Deadline           int64          `json:"deadline"`
	TotalSupply        string         `json:"totalSupply"`
	BinCount           uint32         `json:"binCount"`
	RecoverySwapFeeBps uint32         `json:"recoverySwapFeeBps"`
	ActiveSwapFeeBps   uint32         `json:"activeSwapFeeBps"`
	CreatorFeeShareBps uint32         `json:"creatorFeeShareBps"`
}

type tradeRequest struct {
	Caller   crypto.Address `json:"caller"`
	AmountIn string         `json:"amountIn"`
	MinOut   string         `json:"minOut"`
}

type positionRequest struct {
	Caller     crypto.Address `json:"caller"`
	PositionID string         `json:"positionId"`
	To         crypto.Address `json:"to,omitempty"`
}

type voteRequest struct {
	Caller  crypto.Address `json:"caller"`
	Support bool           `json:"support"`
}

type sovereignRoute struct {
	path string
	name string
	fn   intentFunc
}

func (s *Server) sovereignIntents() []sovereignRoute {
	return []sovereignRoute{
		{"deposit", "deposit", s.deposit},
		{"withdraw", "withdrawDuringBonding", s.withdraw},
		{"finalize", "finalize", s.callerIntent(s.sovereigns.Finalize)},
		{"claim-refund", "claimRefund", s.callerIntent(s.sovereigns.ClaimRefund)},
		{"buy", "buy", s.buy},
		{"sell", "sell", s.sell},
		{"claim-lp-fees", "claimLpFees", s.callerIntent(s.sovereigns.ClaimLpFees)},
		{"claim-creator-fees", "claimCreatorFees", s.callerIntent(s.sovereigns.ClaimCreatorFees)},
		{"positions", "mintPositionNFT", s.mintPosition},
		{"positions/burn", "burnPositionNFT", s.burnPosition},
		{"positions/transfer", "transferPositionNFT", s.transferPosition},
		{"activity-check", "initiateActivityCheck", s.callerIntent(s.sovereigns.InitiateActivityCheck)},
		{"resolve-unwind", "resolveUnwind", s.callerIntent(s.sovereigns.ResolveUnwind)},
		{"claim-unwind", "claimUnwind", s.callerIntent(s.sovereigns.ClaimUnwind)},
	}
}

func (s *Server) callerIntent(call func(id string, caller [20]byte) (*sovereign.Receipt, error)) intentFunc {
	return func(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
		var req callerRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, nil, err
		}
		return receiptOnly(call(chi.URLParam(r, "id"), req.Caller))
	}
}

func (s *Server) createSovereign(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, nil, err
	}
	bondTarget, err := parseOptionalAmount("bondTarget", req.BondTarget)
	if err != nil {
		return nil, nil, err
	}
	supply, err := parseOptionalAmount("totalSupply", req.TotalSupply)
	if err != nil {
		return nil, nil, err
	}
	params := sovereign.LaunchParams{
		ID:                 strings.TrimSpace(req.ID),
		Name:               req.Name,
		Symbol:             req.Symbol,
		BondTarget:         bondTarget,
		Deadline:           req.Deadline,
		TotalSupply:        supply,
		BinCount:           req.BinCount,
		RecoverySwapFeeBps: req.RecoverySwapFeeBps,
		ActiveSwapFeeBps:   req.ActiveSwapFeeBps,
		CreatorFeeShareBps: req.CreatorFeeShareBps,
	}
	return receiptOnly(s.sovereigns.CreateSovereign(req.Caller, params))
}

func (s *Server) deposit(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, amount, err := decodeAmount(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.Deposit(chi.URLParam(r, "id"), req.Caller, amount))
}

func (s *Server) withdraw(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, amount, err := decodeAmount(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.WithdrawDuringBonding(chi.URLParam(r, "id"), req.Caller, amount))
}

func (s *Server) mintPosition(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, amount, err := decodeAmount(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.MintPositionNFT(chi.URLParam(r, "id"), req.Caller, amount))
}

func decodeAmount(r *http.Request) (amountRequest, *big.Int, error) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return req, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	return req, amount, err
}

func decodeTrade(r *http.Request) (tradeRequest, *big.Int, *big.Int, error) {
	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		return req, nil, nil, err
	}
	amountIn, err := parseAmount("amountIn", req.AmountIn)
	if err != nil {
		return req, nil, nil, err
	}
	minOut, err := parseOptionalAmount("minOut", req.MinOut)
	if err != nil {
		return req, nil, nil, err
	}
	return req, amountIn, minOut, nil
}

func (s *Server) buy(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, baseIn, minOut, err := decodeTrade(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.Buy(chi.URLParam(r, "id"), req.Caller, baseIn, minOut))
}

func (s *Server) sell(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, assetIn, minOut, err := decodeTrade(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.Sell(chi.URLParam(r, "id"), req.Caller, assetIn, minOut))
}

func decodePosition(r *http.Request) (positionRequest, [32]byte, error) {
	var req positionRequest
	var id [32]byte
	if err := decodeBody(r, &req); err != nil {
		return req, id, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.PositionID), "0x"))
	if err != nil || len(raw) != len(id) {
		return req, id, badRequest("positionId must be 32 hex-encoded bytes")
	}
	copy(id[:], raw)
	return req, id, nil
}

func (s *Server) burnPosition(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, posID, err := decodePosition(r)
	if err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.sovereigns.BurnPositionNFT(chi.URLParam(r, "id"), req.Caller, posID))
}

func (s *Server) transferPosition(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	req, posID, err := decodePosition(r)
	if err != nil {
		return nil, nil, err
	}
	if req.To.IsZero() {
		return nil, nil, badRequest("to is required")
	}
	return receiptOnly(s.sovereigns.TransferPositionNFT(chi.URLParam(r, "id"), req.Caller, posID, req.To))
}

func proposalIDParam(r *http.Request) (uint64, error) {
	pid, err := strconv.ParseUint(chi.URLParam(r, "pid"), 10, 64)
	if err != nil {
		return 0, badRequest("proposal id must be an unsigned integer")
	}
	return pid, nil
}

func (s *Server) proposeUnwind(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.governance.ProposeUnwind(chi.URLParam(r, "id"), req.Caller))
}

func (s *Server) castVote(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	pid, err := proposalIDParam(r)
	if err != nil {
		return nil, nil, err
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, nil, err
	}
	return receiptOnly(s.governance.CastVote(chi.URLParam(r, "id"), pid, req.Caller, req.Support))
}

func (s *Server) proposalIntent(call func(sovereignID string, pid uint64, caller [20]byte) (*sovereign.Receipt, error)) intentFunc {
	return func(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
		pid, err := proposalIDParam(r)
		if err != nil {
			return nil, nil, err
		}
		var req callerRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, nil, err
		}
		return receiptOnly(call(chi.URLParam(r, "id"), pid, req.Caller))
	}
}

func (s *Server) finalizeVote(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	pid, err := proposalIDParam(r)
	if err != nil {
		return nil, nil, err
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, nil, err
	}
	return s.governance.FinalizeVote(chi.URLParam(r, "id"), pid, req.Caller)
}

func (s *Server) executeUnwind(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	return s.proposalIntent(s.governance.ExecuteUnwind)(r)
}

func (s *Server) cancelProposal(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	return s.proposalIntent(s.governance.CancelProposal)(r)
}

// Admin intents take the caller from the verified token.

func (s *Server) adminIntent(r *http.Request, call func(id string, admin [20]byte) (*sovereign.Receipt, error)) (*sovereign.Receipt, *governance.Tally, error) {
	admin, ok := adminFrom(r.Context())
	if !ok {
		return nil, nil, sovereign.ErrNotAuthorized
	}
	return receiptOnly(call(chi.URLParam(r, "id"), admin))
}

func (s *Server) halt(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	return s.adminIntent(r, s.sovereigns.Halt)
}

func (s *Server) resume(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	return s.adminIntent(r, s.sovereigns.Resume)
}

func (s *Server) retire(r *http.Request) (*sovereign.Receipt, *governance.Tally, error) {
	return s.adminIntent(r, s.sovereigns.Retire)
}

type fundRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, badRequest("invalid address: %v", err))
		return
	}
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, err := s.sovereigns.Fund(addr, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	admin, _ := adminFrom(r.Context())
	s.logger.Info("account funded", "admin", admin.String(), "address", addr.String(), "amount", amount.String())
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Snapshot()})
}

func (s *Server) handleModulePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := strings.ToLower(chi.URLParam(r, "module"))
		switch module {
		case moduleSovereign, moduleGovernance:
		default:
			writeError(w, badRequest("unknown module %q", module))
			return
		}
		s.pauses.Set(module, paused)
		admin, _ := adminFrom(r.Context())
		s.logger.Info("module pause updated", "admin", admin.String(), "module", module, "paused", paused)
		writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": paused})
	}
}

// Reads.

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.sovereigns.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.sovereigns.View(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type buyQuoteView struct {
	BaseIn      *big.Int `json:"baseIn"`
	Fee         *big.Int `json:"fee"`
	BaseForPool *big.Int `json:"baseForPool"`
	AssetOut    *big.Int `json:"assetOut"`
	BinsTouched int      `json:"binsTouched"`
	PriceBefore *big.Int `json:"priceBefore"`
	PriceAfter  *big.Int `json:"priceAfter"`
}

type sellQuoteView struct {
	AssetIn     *big.Int `json:"assetIn"`
	GrossBase   *big.Int `json:"grossBase"`
	Fee         *big.Int `json:"fee"`
	BaseOut     *big.Int `json:"baseOut"`
	BinsTouched int      `json:"binsTouched"`
}

func (s *Server) handleQuoteBuy(w http.ResponseWriter, r *http.Request) {
	baseIn, err := parseAmount("baseIn", r.URL.Query().Get("baseIn"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := s.sovereigns.QuoteBuy(chi.URLParam(r, "id"), baseIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buyQuoteView{
		BaseIn:      q.BaseIn,
		Fee:         q.Fee,
		BaseForPool: q.BaseForPool,
		AssetOut:    q.AssetOut,
		BinsTouched: len(q.Fills),
		PriceBefore: q.PriceBefore,
		PriceAfter:  q.PriceAfter,
	})
}

func (s *Server) handleQuoteSell(w http.ResponseWriter, r *http.Request) {
	assetIn, err := parseAmount("assetIn", r.URL.Query().Get("assetIn"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := s.sovereigns.QuoteSell(chi.URLParam(r, "id"), assetIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sellQuoteView{
		AssetIn:     q.AssetIn,
		GrossBase:   q.GrossBase,
		Fee:         q.Fee,
		BaseOut:     q.BaseOut,
		BinsTouched: len(q.Drains),
	})
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, badRequest("invalid address: %v", err))
		return
	}
	view, err := s.sovereigns.Holder(chi.URLParam(r, "id"), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, badRequest("invalid address: %v", err))
		return
	}
	acct, err := s.sovereigns.Account(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	views, err := s.governance.Proposals(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.governance.Proposal(chi.URLParam(r, "id"), pid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type voteView struct {
	Identity  string         `json:"identity"`
	Voter     crypto.Address `json:"voter"`
	Support   bool           `json:"support"`
	WeightBps uint32         `json:"weightBps"`
	CastAt    int64          `json:"castAt"`
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	votes, err := s.governance.Votes(chi.URLParam(r, "id"), pid)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]voteView, 0, len(votes))
	for _, v := range votes {
		out = append(out, voteView{
			Identity:  v.Identity,
			Voter:     crypto.Address(v.Voter),
			Support:   v.Support,
			WeightBps: v.WeightBps,
			CastAt:    v.CastAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "journal disabled"})
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{
		SovereignID: q.Get("sovereign"),
		Intent:      q.Get("intent"),
		Caller:      q.Get("caller"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, badRequest("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal list failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "journal disabled"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "receiptID"))
	if err != nil {
		writeError(w, badRequest("invalid receipt id"))
		return
	}
	entry, err := s.journal.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("journal get failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
