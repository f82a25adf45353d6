package payout

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/database"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/notify"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments/paymentstest"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *recordingMailer) Send(ctx context.Context, email notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

type fixture struct {
	db      *gorm.DB
	gateway *paymentstest.Gateway
	mailer  *recordingMailer
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "payout.db")},
	})
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })

	return &fixture{
		db:      gdb.DB(),
		gateway: paymentstest.NewGateway(),
		mailer:  &recordingMailer{},
		now:     time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) job(minimum int64) *Job {
	notifier := notify.NewNotifier(f.db, f.mailer, "https://example.test/affiliate")
	j := NewJob(f.db, f.gateway, notifier, config.PayoutsConfig{MinimumCents: minimum, Currency: "USD"})
	j.now = func() time.Time { return f.now }
	return j
}

func (f *fixture) affiliate(t *testing.T, id, accountID string) {
	t.Helper()
	userID := "user-" + id
	require.NoError(t, f.db.Create(&models.User{ID: userID, Email: id + "@example.test", FullName: "Aff " + id}).Error)
	aff := &models.Affiliate{
		ID:           id,
		UserID:       userID,
		ReferralCode: "CODE-" + id,
		Status:       models.AffiliateStatusApproved,
	}
	if accountID != "" {
		aff.StripeAccountID = &accountID
	}
	require.NoError(t, f.db.Create(aff).Error)
}

func (f *fixture) commission(t *testing.T, id, affiliateID string, cents int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Commission{
		ID:               id,
		AffiliateID:      affiliateID,
		ReferralID:       "ref-" + id,
		BillingReference: "in_" + id,
		GrossAmountCents: cents * 5,
		Rate:             0.2,
		AmountCents:      cents,
		Currency:         "usd",
		Status:           models.CommissionStatusApproved,
	}).Error)
}

func (f *fixture) commissions(t *testing.T, affiliateID string) []models.Commission {
	t.Helper()
	var out []models.Commission
	require.NoError(t, f.db.Where("affiliate_id = ?", affiliateID).Order("id").Find(&out).Error)
	return out
}

func (f *fixture) payoutCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Payout{}).Count(&n).Error)
	return n
}

func TestRun_BelowMinimumCreatesNoPayout(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.gateway.ReadyAccount("acct_1")
	f.commission(t, "c1", "aff-1", 1000)
	f.commission(t, "c2", "aff-1", 2000)

	result, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, ReasonBelowMinimum, result.Affiliates[0].Reason)
	assert.Equal(t, int64(3000), result.Affiliates[0].AmountCents)
	assert.Zero(t, f.payoutCount(t))
	assert.Zero(t, f.gateway.TransferCount())
	for _, c := range f.commissions(t, "aff-1") {
		assert.Equal(t, models.CommissionStatusApproved, c.Status)
		assert.Nil(t, c.PayoutID)
	}
}

func TestReserve_BelowMinimumRollsBack(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.commission(t, "c1", "aff-1", 1200)
	f.commission(t, "c2", "aff-1", 800)

	payout, err := f.job(5000).reserve(context.Background(), "aff-1")
	require.ErrorIs(t, err, errBelowMinimum)
	require.NotNil(t, payout)
	assert.Equal(t, int64(2000), payout.AmountCents)

	assert.Zero(t, f.payoutCount(t))
	for _, c := range f.commissions(t, "aff-1") {
		assert.Equal(t, models.CommissionStatusApproved, c.Status)
		assert.Nil(t, c.PayoutID)
	}
}

func TestRun_PaysApprovedCommissions(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.gateway.ReadyAccount("acct_1")
	f.commission(t, "c1", "aff-1", 3000)
	f.commission(t, "c2", "aff-1", 4500)

	result, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Paid)
	assert.Equal(t, int64(7500), result.TotalPaidCents)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout).Error)
	assert.Equal(t, models.PayoutStatusCompleted, payout.Status)
	assert.Equal(t, int64(7500), payout.AmountCents)
	assert.Equal(t, 2, payout.CommissionCount)
	assert.Equal(t, "usd", payout.Currency)
	require.NotNil(t, payout.StripeTransferID)
	assert.Equal(t, "tr_1", *payout.StripeTransferID)
	require.NotNil(t, payout.CompletedAt)
	assert.True(t, payout.CompletedAt.Equal(f.now))

	require.Equal(t, 1, f.gateway.TransferCount())
	req := f.gateway.Transfers[0]
	assert.Equal(t, payout.ID, req.IdempotencyKey)
	assert.Equal(t, "acct_1", req.Destination)
	assert.Equal(t, int64(7500), req.AmountCents)

	for _, c := range f.commissions(t, "aff-1") {
		assert.Equal(t, models.CommissionStatusPaid, c.Status)
		require.NotNil(t, c.PayoutID)
		assert.Equal(t, payout.ID, *c.PayoutID)
		assert.NotNil(t, c.PaidAt)
	}

	var aff models.Affiliate
	require.NoError(t, f.db.First(&aff, "id = ?", "aff-1").Error)
	assert.Equal(t, int64(7500), aff.TotalPaidCents)

	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", "user-aff-1").Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTypePayout, notes[0].Type)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "aff-1@example.test", f.mailer.sent[0].ToEmail)

	// a second run finds nothing left to pay
	again, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Paid)
	assert.Equal(t, ReasonNothingToPay, again.Affiliates[0].Reason)
	assert.Equal(t, 1, f.gateway.TransferCount())
}

func TestRun_TransferFailureReleasesCommissions(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.gateway.ReadyAccount("acct_1")
	f.gateway.TransferErr = errors.New("insufficient platform balance")
	f.commission(t, "c1", "aff-1", 6000)

	result, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout).Error)
	assert.Equal(t, models.PayoutStatusFailed, payout.Status)
	assert.Equal(t, "insufficient platform balance", payout.FailureReason)
	assert.Nil(t, payout.StripeTransferID)

	cs := f.commissions(t, "aff-1")
	require.Len(t, cs, 1)
	assert.Equal(t, models.CommissionStatusApproved, cs[0].Status)
	assert.Nil(t, cs[0].PayoutID)

	var aff models.Affiliate
	require.NoError(t, f.db.First(&aff, "id = ?", "aff-1").Error)
	assert.Zero(t, aff.TotalPaidCents)
	assert.Empty(t, f.mailer.sent)

	// the released commissions are picked up once transfers work again
	f.gateway.TransferErr = nil
	retry, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Paid)
	assert.Equal(t, int64(2), f.payoutCount(t))
}

func TestRun_AccountNotReadyMovesAffiliateToPending(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.gateway.Accounts["acct_1"] = &payments.ConnectedAccount{ID: "acct_1", PayoutsEnabled: true, TransfersActive: false}
	f.commission(t, "c1", "aff-1", 9000)

	result, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, ReasonAccountNotReady, result.Affiliates[0].Reason)

	var aff models.Affiliate
	require.NoError(t, f.db.First(&aff, "id = ?", "aff-1").Error)
	assert.Equal(t, models.AffiliateStatusPending, aff.Status)
	assert.Zero(t, f.payoutCount(t))
}

func TestRun_AccountLookupErrorSkips(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.gateway.AccountErr = errors.New("stripe unavailable")
	f.commission(t, "c1", "aff-1", 9000)

	result, err := f.job(5000).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonAccountLookup, result.Affiliates[0].Reason)

	var aff models.Affiliate
	require.NoError(t, f.db.First(&aff, "id = ?", "aff-1").Error)
	assert.Equal(t, models.AffiliateStatusApproved, aff.Status)
	assert.Zero(t, f.payoutCount(t))
}

func TestEligibleAffiliates(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", "acct_1")
	f.affiliate(t, "aff-2", "")
	f.affiliate(t, "aff-3", "acct_3")
	require.NoError(t, f.db.Model(&models.Affiliate{}).Where("id = ?", "aff-3").
		Update("status", models.AffiliateStatusSuspended).Error)

	affiliates, err := f.job(5000).EligibleAffiliates(context.Background())
	require.NoError(t, err)
	require.Len(t, affiliates, 1)
	assert.Equal(t, "aff-1", affiliates[0].ID)
}

func TestNewJob_Defaults(t *testing.T) {
	j := NewJob(nil, nil, nil, config.PayoutsConfig{})
	assert.Equal(t, DefaultMinimumCents, j.minimumCents)
	assert.Equal(t, "usd", j.currency)
	assert.Equal(t, 1, j.concurrency)
}
