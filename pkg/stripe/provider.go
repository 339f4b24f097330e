package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/transfer"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

const (
	TransferStatusSucceeded = "succeeded"
	TransferStatusReversed  = "reversed"
)

// TransferRequest moves funds from the platform balance to a connected account.
type TransferRequest struct {
	AmountMinor    int64
	Currency       string
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferResult struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
}

type ConnectAccountRequest struct {
	Email      string
	Country    string
	Metadata   map[string]string
	RefreshURL string
	ReturnURL  string
}

type ConnectAccountResult struct {
	AccountID     string
	OnboardingURL string
}

// Provider is the payout surface used by the ledger: transfers to connected
// accounts and Express onboarding.
type Provider struct {
	currency string
	country  string

	newTransfer    func(*stripe.TransferParams) (*stripe.Transfer, error)
	newAccount     func(*stripe.AccountParams) (*stripe.Account, error)
	newAccountLink func(*stripe.AccountLinkParams) (*stripe.AccountLink, error)
}

// NewProvider requires an initialized client so the package-level key is set.
func NewProvider(client *Client, cfg config.StripeConfig) (*Provider, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &Provider{
		currency:       strings.ToLower(strings.TrimSpace(cfg.Currency)),
		country:        strings.ToUpper(strings.TrimSpace(cfg.Country)),
		newTransfer:    transfer.New,
		newAccount:     account.New,
		newAccountLink: accountlink.New,
	}, nil
}

// Currency is the default settlement currency.
func (p *Provider) Currency() string {
	return p.currency
}

func (p *Provider) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer destination required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	tr, err := p.newTransfer(params)
	if err != nil {
		return nil, providerError(err, "stripe transfer failed")
	}
	status := TransferStatusSucceeded
	if tr.Reversed {
		status = TransferStatusReversed
	}
	return &TransferResult{
		ID:          tr.ID,
		Status:      status,
		AmountMinor: tr.Amount,
		Currency:    string(tr.Currency),
	}, nil
}

// CreateConnectAccount creates an Express account able to receive transfers and
// returns its onboarding link.
func (p *Provider) CreateConnectAccount(ctx context.Context, req ConnectAccountRequest) (*ConnectAccountResult, error) {
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		country = p.country
	}
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	acct, err := p.newAccount(params)
	if err != nil {
		return nil, providerError(err, "stripe account creation failed")
	}

	url, err := p.OnboardingLink(ctx, acct.ID, req.RefreshURL, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &ConnectAccountResult{AccountID: acct.ID, OnboardingURL: url}, nil
}

// OnboardingLink issues a fresh account_onboarding link for an existing account.
func (p *Provider) OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	if accountID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := p.newAccountLink(params)
	if err != nil {
		return "", providerError(err, "stripe account link failed")
	}
	return link.URL, nil
}

func providerError(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeProviderError, err, msg).WithDetails(map[string]any{
			"stripe_code":  string(stripeErr.Code),
			"stripe_type":  string(stripeErr.Type),
			"http_status":  stripeErr.HTTPStatusCode,
			"request_id":   stripeErr.RequestID,
			"provider_msg": stripeErr.Msg,
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderError, err, fmt.Sprintf("%s: provider unreachable", msg))
}
