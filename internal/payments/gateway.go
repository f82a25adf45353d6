// Package payments wraps the payment provider calls used by the affiliate jobs.
package payments

import "context"

// Subscription is the billing state the commission job cares about
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	BillingReference string
	GrossAmountCents int64
	Currency         string
}

// SubscriptionLookup is the result of searching subscriptions by email
type SubscriptionLookup struct {
	CustomerFound     bool
	SubscriptionCount int
	Active            *Subscription
}

// ConnectedAccount is the payout-relevant state of an affiliate's connected account
type ConnectedAccount struct {
	ID              string
	PayoutsEnabled  bool
	TransfersActive bool
}

// CanReceiveTransfers reports whether a transfer to the account can succeed
func (a *ConnectedAccount) CanReceiveTransfers() bool {
	return a != nil && a.PayoutsEnabled && a.TransfersActive
}

// TransferRequest moves funds from the platform balance to a connected account
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Transfer is a created transfer
type Transfer struct {
	ID string
}

// Gateway is the payment provider surface used by the commission and payout jobs
type Gateway interface {
	FindActiveSubscription(ctx context.Context, email string) (*SubscriptionLookup, error)
	GetConnectedAccount(ctx context.Context, accountID string) (*ConnectedAccount, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}
