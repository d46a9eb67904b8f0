package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"basketfund/native/fund"
	"basketfund/native/token"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fund.ErrNotInitialized), errors.Is(err, fund.ErrAlreadyInitialized):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fund.ErrNotOwner):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, fund.ErrDepositRequired),
		errors.Is(err, fund.ErrTokensRequired),
		errors.Is(err, fund.ErrWeightLength),
		errors.Is(err, fund.ErrWeightSum),
		errors.Is(err, token.ErrAmountPositive):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fund.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", trimmed)
	}
	return value, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type buyRequest struct {
	Deposit string `json:"deposit"`
}

type buyResponse struct {
	WorkflowID     string `json:"workflowId"`
	Account        string `json:"account"`
	Deposit        string `json:"deposit"`
	Price          string `json:"price"`
	Minted         string `json:"minted"`
	Received       string `json:"received"`
	AdminFee       string `json:"adminFee"`
	FundFee        string `json:"fundFee"`
	DegradedQuotes int    `json:"degradedQuotes"`
	Error          string `json:"error,omitempty"`
}

func buyDTO(receipt *fund.BuyReceipt) buyResponse {
	return buyResponse{
		WorkflowID:     receipt.WorkflowID,
		Account:        receipt.Account,
		Deposit:        amountString(receipt.Deposit),
		Price:          amountString(receipt.Price),
		Minted:         amountString(receipt.Minted),
		Received:       amountString(receipt.Received),
		AdminFee:       amountString(receipt.AdminFee),
		FundFee:        amountString(receipt.FundFee),
		DegradedQuotes: receipt.DegradedQuotes,
	}
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req buyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deposit, err := parseAmount(req.Deposit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.engine.Buy(r.Context(), Subject(r.Context()), deposit)
	s.observe(fund.WorkflowBuy, start, err)
	if err != nil {
		if receipt == nil {
			s.writeEngineError(w, err)
			return
		}
		// The mint stands; settlement failed downstream.
		body := buyDTO(receipt)
		body.Error = err.Error()
		respondJSON(w, http.StatusBadGateway, body)
		return
	}
	s.metrics.AddDegradedQuotes(receipt.DegradedQuotes)
	respondJSON(w, http.StatusOK, buyDTO(receipt))
}

type sellRequest struct {
	Tokens string `json:"tokens"`
}

type sellResponse struct {
	WorkflowID     string `json:"workflowId"`
	Account        string `json:"account"`
	Tokens         string `json:"tokens"`
	Burned         string `json:"burned"`
	AdminFee       string `json:"adminFee"`
	FundFee        string `json:"fundFee"`
	Price          string `json:"price"`
	Payout         string `json:"payout"`
	DegradedQuotes int    `json:"degradedQuotes"`
	Error          string `json:"error,omitempty"`
}

func sellDTO(receipt *fund.SellReceipt) sellResponse {
	return sellResponse{
		WorkflowID:     receipt.WorkflowID,
		Account:        receipt.Account,
		Tokens:         amountString(receipt.Tokens),
		Burned:         amountString(receipt.Burned),
		AdminFee:       amountString(receipt.AdminFee),
		FundFee:        amountString(receipt.FundFee),
		Price:          amountString(receipt.Price),
		Payout:         amountString(receipt.Payout),
		DegradedQuotes: receipt.DegradedQuotes,
	}
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req sellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tokens, err := parseAmount(req.Tokens)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.engine.Sell(r.Context(), Subject(r.Context()), tokens)
	s.observe(fund.WorkflowSell, start, err)
	if err != nil {
		if receipt == nil {
			s.writeEngineError(w, err)
			return
		}
		body := sellDTO(receipt)
		body.Error = err.Error()
		respondJSON(w, http.StatusBadGateway, body)
		return
	}
	s.metrics.AddDegradedQuotes(receipt.DegradedQuotes)
	respondJSON(w, http.StatusOK, sellDTO(receipt))
}

type rebalanceRequest struct {
	Weights []uint64 `json:"weights"`
}

type rebalanceResponse struct {
	WorkflowID string   `json:"workflowId"`
	Weights    []uint64 `json:"weights"`
	Liquidated int      `json:"liquidated"`
	Allocated  int      `json:"allocated"`
	NativePool string   `json:"nativePool"`
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req rebalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := s.engine.Rebalance(r.Context(), Subject(r.Context()), fund.Weights(req.Weights))
	s.observe(fund.WorkflowRebalance, start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rebalanceResponse{
		WorkflowID: receipt.WorkflowID,
		Weights:    receipt.Weights,
		Liquidated: receipt.Liquidated,
		Allocated:  receipt.Allocated,
		NativePool: amountString(receipt.NativePool),
	})
}

type refreshResponse struct {
	WorkflowID string `json:"workflowId"`
	Updated    int    `json:"updated"`
	Failed     int    `json:"failed"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := s.engine.Refresh(r.Context())
	s.observe(fund.WorkflowRefresh, start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.MarkSnapshotRefresh(time.Now())
	respondJSON(w, http.StatusOK, refreshResponse{
		WorkflowID: result.WorkflowID,
		Updated:    result.Updated,
		Failed:     result.Failed,
	})
}

type initializeRequest struct {
	Owner         string `json:"owner"`
	Admin         string `json:"admin"`
	Fund          string `json:"fund"`
	InitialSupply string `json:"initialSupply"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Decimals      uint8  `json:"decimals"`
	Icon          string `json:"icon,omitempty"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	supply, err := parseAmount(req.InitialSupply)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.engine.Initialize(fund.Identities{
		Owner: req.Owner,
		Admin: req.Admin,
		Fund:  req.Fund,
	}, supply, token.Metadata{
		Name:     req.Name,
		Symbol:   req.Symbol,
		Decimals: req.Decimals,
		Icon:     req.Icon,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

func (s *Server) handleRegisterVenue(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RegisterVenue(r.Context(), Subject(r.Context())); err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.engine.Price(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"price":     amountString(price),
		"precision": fund.Precision.String(),
	})
}

type snapshotPosition struct {
	Symbol  string `json:"symbol,omitempty"`
	TokenID string `json:"tokenId"`
	Balance string `json:"balance"`
}

type snapshotResponse struct {
	Native string             `json:"native"`
	Assets []snapshotPosition `json:"assets"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	basket := s.engine.Basket()
	snap := s.engine.SnapshotView()
	assets := make([]snapshotPosition, len(basket.Assets))
	for i, asset := range basket.Assets {
		assets[i] = snapshotPosition{
			Symbol:  asset.Symbol,
			TokenID: asset.TokenID,
			Balance: amountString(snap.Asset(i)),
		}
	}
	respondJSON(w, http.StatusOK, snapshotResponse{
		Native: amountString(snap.Native()),
		Assets: assets,
	})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"totalSupply": amountString(supply)})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	meta, ok, err := s.ledger.Metadata()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "metadata not set")
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(chi.URLParam(r, "account"))
	if account == "" {
		respondError(w, http.StatusBadRequest, "account required")
		return
	}
	balance, err := s.ledger.BalanceOf(account)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"balance": amountString(balance),
	})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from := Subject(r.Context())
	if err := s.ledger.EnsureRegistered(strings.TrimSpace(req.To)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.ledger.Transfer(from, strings.TrimSpace(req.To), amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"from":   from,
		"to":     strings.TrimSpace(req.To),
		"amount": amountString(amount),
	})
}

type workflowDTO struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Account    string `json:"account,omitempty"`
	AmountIn   string `json:"amountIn"`
	AmountOut  string `json:"amountOut"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotFound, "history not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	workflows, err := s.store.ListWorkflows(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]workflowDTO, len(workflows))
	for i, record := range workflows {
		out[i] = workflowDTO{
			ID:         record.ID,
			Kind:       record.Kind,
			Account:    record.Account,
			AmountIn:   amountString(record.AmountIn),
			AmountOut:  amountString(record.AmountOut),
			Status:     record.Status,
			Detail:     record.Detail,
			StartedAt:  record.StartedAt.Format(time.RFC3339),
			FinishedAt: record.FinishedAt.Format(time.RFC3339),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotFound, "history not configured")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="workflows.csv"`)
	if err := s.store.ExportCSV(r.Context(), w); err != nil {
		s.logger.Error("export failed", "err", err)
	}
}
