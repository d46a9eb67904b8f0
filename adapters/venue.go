package adapters

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"basketfund/native/fund"
)

// VenueClient talks to the exchange REST API. It satisfies the
// fund.Exchange interface.
type VenueClient struct {
	*client
}

// NewVenueClient builds an exchange client for the given endpoint.
func NewVenueClient(endpoint string, opts Options) (*VenueClient, error) {
	c, err := newClient(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &VenueClient{client: c}, nil
}

type quoteRequest struct {
	PoolID   uint64 `json:"pool_id"`
	TokenIn  string `json:"token_in"`
	AmountIn string `json:"amount_in"`
	TokenOut string `json:"token_out"`
}

type quoteResponse struct {
	AmountOut string `json:"amount_out"`
}

// Quote asks the venue how much of assetOut the given input buys.
func (v *VenueClient) Quote(ctx context.Context, poolID uint64, assetIn string, amountIn *big.Int, assetOut string) (*big.Int, error) {
	var resp quoteResponse
	err := v.doJSON(ctx, http.MethodPost, "/v1/quote", quoteRequest{
		PoolID:   poolID,
		TokenIn:  assetIn,
		AmountIn: amountString(amountIn),
		TokenOut: assetOut,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseAmount(resp.AmountOut)
}

type swapAction struct {
	PoolID       uint64 `json:"pool_id"`
	TokenIn      string `json:"token_in"`
	AmountIn     string `json:"amount_in,omitempty"`
	TokenOut     string `json:"token_out"`
	MinAmountOut string `json:"min_amount_out"`
}

type swapRequest struct {
	Actions  []swapAction `json:"actions"`
	Referral string       `json:"referral_id,omitempty"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
}

// Swap submits an atomic batch of swap legs.
func (v *VenueClient) Swap(ctx context.Context, instructions []fund.SwapInstruction, referral string) (*big.Int, error) {
	actions := make([]swapAction, 0, len(instructions))
	for _, instruction := range instructions {
		action := swapAction{
			PoolID:       instruction.PoolID,
			TokenIn:      instruction.AssetIn,
			TokenOut:     instruction.AssetOut,
			MinAmountOut: amountString(instruction.MinAmountOut),
		}
		if instruction.AmountIn != nil {
			action.AmountIn = instruction.AmountIn.String()
		}
		actions = append(actions, action)
	}
	var resp swapResponse
	err := v.doJSON(ctx, http.MethodPost, "/v1/swap", swapRequest{
		Actions:  actions,
		Referral: referral,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseAmount(resp.AmountOut)
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// DepositBalance reads the account's deposit balance for one asset.
func (v *VenueClient) DepositBalance(ctx context.Context, account, asset string) (*big.Int, error) {
	path := "/v1/deposits/" + url.PathEscape(account) + "/" + url.PathEscape(asset)
	var resp balanceResponse
	if err := v.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Balance)
}

type withdrawRequest struct {
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Unregister bool   `json:"unregister"`
}

// Withdraw pulls a deposited asset back out of the venue.
func (v *VenueClient) Withdraw(ctx context.Context, asset string, amount *big.Int, unregister bool) error {
	return v.doJSON(ctx, http.MethodPost, "/v1/withdraw", withdrawRequest{
		Token:      asset,
		Amount:     amountString(amount),
		Unregister: unregister,
	}, nil)
}

type registerTokensRequest struct {
	Tokens []string `json:"tokens"`
}

// RegisterAssets whitelists the given tokens for the venue account.
func (v *VenueClient) RegisterAssets(ctx context.Context, assets []string) error {
	return v.doJSON(ctx, http.MethodPost, "/v1/register-tokens", registerTokensRequest{Tokens: assets}, nil)
}

type storageDepositRequest struct {
	Account          string `json:"account_id"`
	RegistrationOnly bool   `json:"registration_only"`
}

// StorageDeposit posts the venue's storage bond for an account.
func (v *VenueClient) StorageDeposit(ctx context.Context, account string, registrationOnly bool) error {
	return v.doJSON(ctx, http.MethodPost, "/v1/storage-deposit", storageDepositRequest{
		Account:          account,
		RegistrationOnly: registrationOnly,
	}, nil)
}

type transferCallRequest struct {
	Receiver string `json:"receiver_id"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Msg      string `json:"msg"`
}

// TransferCall moves a wrapped deposit into the venue account.
func (v *VenueClient) TransferCall(ctx context.Context, receiver, asset string, amount *big.Int, msg string) error {
	return v.doJSON(ctx, http.MethodPost, "/v1/transfer-call", transferCallRequest{
		Receiver: receiver,
		Token:    asset,
		Amount:   amountString(amount),
		Msg:      msg,
	}, nil)
}
