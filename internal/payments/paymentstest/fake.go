// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
)

// Gateway is a scripted payments.Gateway that records the calls it receives
type Gateway struct {
	mu sync.Mutex

	// Subscriptions by customer email; a missing email means no customer
	Subscriptions map[string]*payments.SubscriptionLookup
	// Accounts by connected account id
	Accounts map[string]*payments.ConnectedAccount

	LookupErr   error
	AccountErr  error
	TransferErr error
	LookupDelay time.Duration

	LookupCalls int
	Transfers   []payments.TransferRequest
}

// NewGateway returns an empty fake gateway
func NewGateway() *Gateway {
	return &Gateway{
		Subscriptions: make(map[string]*payments.SubscriptionLookup),
		Accounts:      make(map[string]*payments.ConnectedAccount),
	}
}

// ActiveSubscription scripts an active subscription for email
func (g *Gateway) ActiveSubscription(email, subID string, grossCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Subscriptions[email] = &payments.SubscriptionLookup{
		CustomerFound:     true,
		SubscriptionCount: 1,
		Active: &payments.Subscription{
			ID:               subID,
			Status:           "active",
			BillingReference: "in_" + subID,
			GrossAmountCents: grossCents,
			Currency:         "usd",
		},
	}
}

// ReadyAccount scripts a connected account able to receive transfers
func (g *Gateway) ReadyAccount(accountID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Accounts[accountID] = &payments.ConnectedAccount{ID: accountID, PayoutsEnabled: true, TransfersActive: true}
}

func (g *Gateway) FindActiveSubscription(ctx context.Context, email string) (*payments.SubscriptionLookup, error) {
	g.mu.Lock()
	g.LookupCalls++
	delay := g.LookupDelay
	lookup, ok := g.Subscriptions[email]
	err := g.LookupErr
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &payments.SubscriptionLookup{}, nil
	}
	copied := *lookup
	return &copied, nil
}

func (g *Gateway) GetConnectedAccount(ctx context.Context, accountID string) (*payments.ConnectedAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.AccountErr != nil {
		return nil, g.AccountErr
	}
	acct, ok := g.Accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	copied := *acct
	return &copied, nil
}

func (g *Gateway) CreateTransfer(ctx context.Context, req payments.TransferRequest) (*payments.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Transfers = append(g.Transfers, req)
	if g.TransferErr != nil {
		return nil, g.TransferErr
	}
	return &payments.Transfer{ID: fmt.Sprintf("tr_%d", len(g.Transfers))}, nil
}

// TransferCount returns how many transfers were attempted
func (g *Gateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Transfers)
}
