package adapters

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"basketfund/native/fund"
)

func TestVenueQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req quoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.PoolID != 7 || req.TokenIn != "alpha.token" || req.AmountIn != "50" {
			t.Fatalf("unexpected payload: %+v", req)
		}
		json.NewEncoder(w).Encode(quoteResponse{AmountOut: "123"})
	}))
	defer srv.Close()

	venue, err := NewVenueClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewVenueClient: %v", err)
	}
	got, err := venue.Quote(context.Background(), 7, "alpha.token", big.NewInt(50), "wrap.token")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("quote = %s, want 123", got)
	}
}

func TestVenueSwapSerializesLegs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req swapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Actions) != 2 {
			t.Fatalf("actions = %d, want 2", len(req.Actions))
		}
		if req.Actions[0].AmountIn != "49" || req.Actions[1].AmountIn != "" {
			t.Fatalf("amounts = %q/%q", req.Actions[0].AmountIn, req.Actions[1].AmountIn)
		}
		if req.Referral != "partner.acct" {
			t.Fatalf("referral = %q", req.Referral)
		}
		json.NewEncoder(w).Encode(swapResponse{AmountOut: "1"})
	}))
	defer srv.Close()

	venue, err := NewVenueClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewVenueClient: %v", err)
	}
	// The second leg carries no amount: the venue chains the previous
	// leg's output.
	_, err = venue.Swap(context.Background(), []fund.SwapInstruction{
		{PoolID: 1, AssetIn: "alpha.token", AmountIn: big.NewInt(49), AssetOut: "wrap.token", MinAmountOut: big.NewInt(1)},
		{PoolID: 2, AssetIn: "wrap.token", AssetOut: "beta.token", MinAmountOut: big.NewInt(1)},
	}, "partner.acct")
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
}

func TestVenueDepositBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/deposits/fund.venue/wrap.token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(balanceResponse{Balance: "900"})
	}))
	defer srv.Close()

	venue, err := NewVenueClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewVenueClient: %v", err)
	}
	got, err := venue.DepositBalance(context.Background(), "fund.venue", "wrap.token")
	if err != nil {
		t.Fatalf("DepositBalance: %v", err)
	}
	if got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("balance = %s, want 900", got)
	}
}

func TestVenueErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pool drained", http.StatusBadGateway)
	}))
	defer srv.Close()

	venue, err := NewVenueClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewVenueClient: %v", err)
	}
	if _, err := venue.Quote(context.Background(), 1, "alpha.token", big.NewInt(1), "wrap.token"); err == nil {
		t.Fatal("expected error from 502 response")
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "1.5"} {
		if _, err := parseAmount(raw); err == nil {
			t.Fatalf("parseAmount(%q) accepted", raw)
		}
	}
	got, err := parseAmount(" 42 ")
	if err != nil {
		t.Fatalf("parseAmount: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("parsed = %s, want 42", got)
	}
}
