package adapters

import (
	"context"
	"math/big"
	"net/http"
)

// PayerClient settles native currency transfers through the treasury
// payments service. It satisfies the fund.Payer interface.
type PayerClient struct {
	*client
}

// NewPayerClient builds a payments client for the given endpoint.
func NewPayerClient(endpoint string, opts Options) (*PayerClient, error) {
	c, err := newClient(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &PayerClient{client: c}, nil
}

type payRequest struct {
	Account string `json:"account_id"`
	Amount  string `json:"amount"`
}

// Pay transfers native currency to the given account.
func (p *PayerClient) Pay(ctx context.Context, account string, amount *big.Int) error {
	return p.doJSON(ctx, http.MethodPost, "/v1/transfer", payRequest{
		Account: account,
		Amount:  amountString(amount),
	}, nil)
}
