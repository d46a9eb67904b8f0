package adapters

import (
	"context"
	"math/big"
	"net/http"
)

// WrapperClient converts native currency to and from the wrapped token
// via the wrap service. It satisfies the fund.Wrapper interface.
type WrapperClient struct {
	*client
}

// NewWrapperClient builds a wrap-service client for the given endpoint.
func NewWrapperClient(endpoint string, opts Options) (*WrapperClient, error) {
	c, err := newClient(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &WrapperClient{client: c}, nil
}

type wrapRequest struct {
	Amount string `json:"amount"`
}

// Wrap deposits native currency and receives the wrapped token.
func (w *WrapperClient) Wrap(ctx context.Context, amount *big.Int) error {
	return w.doJSON(ctx, http.MethodPost, "/v1/wrap", wrapRequest{Amount: amountString(amount)}, nil)
}

// Unwrap redeems the wrapped token back to native currency.
func (w *WrapperClient) Unwrap(ctx context.Context, amount *big.Int) error {
	return w.doJSON(ctx, http.MethodPost, "/v1/unwrap", wrapRequest{Amount: amountString(amount)}, nil)
}
