package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/transfer"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

// ErrNotConfigured is returned when no Stripe secret key is set
var ErrNotConfigured = errors.New("stripe secret key is not configured")

// StripeGateway implements Gateway with the Stripe API
type StripeGateway struct {
	configured bool
}

// NewStripeGateway sets the global Stripe key and returns the gateway
func NewStripeGateway(secretKey string) *StripeGateway {
	if secretKey == "" {
		logging.ForComponent("payments").Warn("Stripe secret key not set; payment calls will fail")
		return &StripeGateway{}
	}
	stripe.Key = secretKey
	return &StripeGateway{configured: true}
}

// FindActiveSubscription looks through every customer with the email for an active subscription
func (g *StripeGateway) FindActiveSubscription(ctx context.Context, email string) (*SubscriptionLookup, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}

	lookup := &SubscriptionLookup{}

	custParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	custParams.Context = ctx
	custIter := customer.List(custParams)
	for custIter.Next() {
		cust := custIter.Customer()
		lookup.CustomerFound = true

		subParams := &stripe.SubscriptionListParams{
			Customer: stripe.String(cust.ID),
			Status:   stripe.String("all"),
		}
		subParams.Context = ctx
		subParams.AddExpand("data.latest_invoice")

		subIter := subscription.List(subParams)
		for subIter.Next() {
			sub := subIter.Subscription()
			lookup.SubscriptionCount++
			if sub.Status == stripe.SubscriptionStatusActive && lookup.Active == nil {
				lookup.Active = toSubscription(sub, cust.ID)
			}
		}
		if err := subIter.Err(); err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
	}
	if err := custIter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	return lookup, nil
}

func toSubscription(sub *stripe.Subscription, customerID string) *Subscription {
	out := &Subscription{
		ID:               sub.ID,
		CustomerID:       customerID,
		Status:           string(sub.Status),
		BillingReference: sub.ID,
		Currency:         string(sub.Currency),
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.ID != "" {
		out.BillingReference = sub.LatestInvoice.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			qty := item.Quantity
			if qty == 0 {
				qty = 1
			}
			out.GrossAmountCents += item.Price.UnitAmount * qty
			if out.Currency == "" {
				out.Currency = string(item.Price.Currency)
			}
		}
	}
	return out
}

// GetConnectedAccount fetches the payout state of a connected account
func (g *StripeGateway) GetConnectedAccount(ctx context.Context, accountID string) (*ConnectedAccount, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, err
	}

	out := &ConnectedAccount{
		ID:             acct.ID,
		PayoutsEnabled: acct.PayoutsEnabled,
	}
	if acct.Capabilities != nil {
		out.TransfersActive = acct.Capabilities.Transfers == stripe.AccountCapabilityStatusActive
	}
	return out, nil
}

// CreateTransfer creates a transfer; the idempotency key makes retries of the same payout safe
func (g *StripeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	t, err := transfer.New(params)
	if err != nil {
		return nil, err
	}
	return &Transfer{ID: t.ID}, nil
}

// FailureReason returns the Stripe error code when there is one, else the error text
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code != "" {
			return string(stripeErr.Code)
		}
		if stripeErr.Msg != "" {
			return stripeErr.Msg
		}
	}
	return err.Error()
}
