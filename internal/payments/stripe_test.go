package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", FailureReason(nil))
	assert.Equal(t, "balance_insufficient", FailureReason(&stripe.Error{Code: stripe.ErrorCodeBalanceInsufficient}))
	assert.Equal(t, "balance_insufficient",
		FailureReason(fmt.Errorf("transfer: %w", &stripe.Error{Code: stripe.ErrorCodeBalanceInsufficient})))
	assert.Equal(t, "account closed", FailureReason(&stripe.Error{Msg: "account closed"}))
	assert.Equal(t, "timeout", FailureReason(errors.New("timeout")))
}

func TestToSubscription(t *testing.T) {
	sub := &stripe.Subscription{
		ID:            "sub_1",
		Status:        stripe.SubscriptionStatusActive,
		Currency:      stripe.CurrencyUSD,
		LatestInvoice: &stripe.Invoice{ID: "in_9"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{UnitAmount: 2900}, Quantity: 1},
				{Price: &stripe.Price{UnitAmount: 500}, Quantity: 2},
				{Price: nil},
			},
		},
	}

	out := toSubscription(sub, "cus_1")
	assert.Equal(t, "sub_1", out.ID)
	assert.Equal(t, "cus_1", out.CustomerID)
	assert.Equal(t, "in_9", out.BillingReference)
	assert.Equal(t, int64(3900), out.GrossAmountCents)
	assert.Equal(t, "usd", out.Currency)
}

func TestConnectedAccountReadiness(t *testing.T) {
	var missing *ConnectedAccount
	assert.False(t, missing.CanReceiveTransfers())
	assert.False(t, (&ConnectedAccount{PayoutsEnabled: true}).CanReceiveTransfers())
	assert.True(t, (&ConnectedAccount{PayoutsEnabled: true, TransfersActive: true}).CanReceiveTransfers())
}

func TestStripeGateway_NotConfigured(t *testing.T) {
	g := NewStripeGateway("")
	_, err := g.FindActiveSubscription(context.Background(), "a@b.c")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.CreateTransfer(context.Background(), TransferRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
