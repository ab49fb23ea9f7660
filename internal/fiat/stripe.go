package fiat

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// TransferParams describes one Connect transfer.
type TransferParams struct {
	Amount             decimal.Decimal // USD
	DestinationAccount string          // acct_... Connect account id
	Metadata           map[string]string
}

// Account is the subset of a Connect account the payout executor checks.
type Account struct {
	ID             string
	PayoutsEnabled bool
}

// Client is the fiat payout rail.
type Client interface {
	Transfer(ctx context.Context, params TransferParams) (string, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
}

// StripeClient pays commissions out through Stripe Connect transfers.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}
}

// Transfer moves the given USD amount to a connected account. Returns the
// Stripe transfer id.
func (s *StripeClient) Transfer(ctx context.Context, params TransferParams) (string, error) {
	cents := params.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	transferParams := &stripe.TransferParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: params.Metadata,
		},
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(params.DestinationAccount),
	}
	transfer, err := s.api.Transfers.New(transferParams)
	if err != nil {
		return "", fmt.Errorf("stripe transfer failed: %w", err)
	}
	return transfer.ID, nil
}

// RetrieveAccount fetches a connected account's payout capability.
func (s *StripeClient) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	account, err := s.api.Accounts.GetByID(accountID, &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe account %s: %w", accountID, err)
	}
	return &Account{
		ID:             account.ID,
		PayoutsEnabled: account.PayoutsEnabled,
	}, nil
}
