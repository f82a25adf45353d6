package commission

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments/paymentstest"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "commission.db")},
	})
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })
	return gdb.DB()
}

type fixture struct {
	db      *gorm.DB
	gateway *paymentstest.Gateway
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		db:      newTestDB(t),
		gateway: paymentstest.NewGateway(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) job(cfg config.CommissionsConfig) *Job {
	j := NewJob(f.db, f.gateway, cfg)
	j.now = func() time.Time { return f.now }
	return j
}

func (f *fixture) affiliate(t *testing.T, id, status string, rate *float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Affiliate{
		ID:             id,
		UserID:         "owner-" + id,
		ReferralCode:   "CODE-" + id,
		Status:         status,
		CommissionRate: rate,
	}).Error)
}

func (f *fixture) referral(t *testing.T, id, affiliateID, email string, qualifiesAt time.Time) {
	t.Helper()
	userID := "user-" + id
	require.NoError(t, f.db.Create(&models.User{ID: userID, Email: email}).Error)
	require.NoError(t, f.db.Create(&models.Referral{
		ID:             id,
		AffiliateID:    affiliateID,
		ReferredUserID: userID,
		Status:         models.ReferralStatusPending,
		QualifiesAt:    qualifiesAt,
	}).Error)
}

func (f *fixture) loadReferral(t *testing.T, id string) models.Referral {
	t.Helper()
	var ref models.Referral
	require.NoError(t, f.db.Where("id = ?", id).First(&ref).Error)
	return ref
}

func rate(r float64) *float64 { return &r }

func TestCalculateCommission(t *testing.T) {
	tests := []struct {
		gross int64
		rate  float64
		want  int64
	}{
		{1000, 0.5, 500},
		{1000, DefaultCommissionRate, 200},
		{2900, 0.2, 580},
		{999, 0.25, 250},
		{0, 0.3, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_x_%v", tt.gross, tt.rate), func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateCommission(tt.gross, tt.rate))
		})
	}
}

func TestEffectiveRate(t *testing.T) {
	assert.Equal(t, 0.5, EffectiveRate(&models.Affiliate{CommissionRate: rate(0.5)}, 0.3))
	assert.Equal(t, 0.3, EffectiveRate(&models.Affiliate{}, 0.3))
	assert.Equal(t, DefaultCommissionRate, EffectiveRate(&models.Affiliate{}, 0))
	assert.Equal(t, DefaultCommissionRate, EffectiveRate(nil, 0))
}

func TestRun_QualifiesActiveSubscriber(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, rate(0.5))
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))
	f.gateway.ActiveSubscription("buyer@example.com", "sub_1", 1000)

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Qualified)
	assert.Equal(t, int64(500), result.CommissionCents)

	ref := f.loadReferral(t, "ref-1")
	assert.Equal(t, models.ReferralStatusQualified, ref.Status)
	assert.NotNil(t, ref.QualifiedAt)
	assert.Nil(t, ref.ClaimToken)

	var commissions []models.Commission
	require.NoError(t, f.db.Find(&commissions).Error)
	require.Len(t, commissions, 1)
	assert.Equal(t, int64(500), commissions[0].AmountCents)
	assert.Equal(t, int64(1000), commissions[0].GrossAmountCents)
	assert.Equal(t, 0.5, commissions[0].Rate)
	assert.Equal(t, models.CommissionStatusApproved, commissions[0].Status)
	assert.Equal(t, "in_sub_1", commissions[0].BillingReference)
	assert.Nil(t, commissions[0].PayoutID)

	var aff models.Affiliate
	require.NoError(t, f.db.Where("id = ?", "aff-1").First(&aff).Error)
	assert.Equal(t, int64(500), aff.TotalEarnedCents)
}

func TestRun_ExistingCommissionQualifiesReferral(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, rate(0.5))
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))
	f.gateway.ActiveSubscription("buyer@example.com", "sub_1", 1000)
	require.NoError(t, f.db.Create(&models.Commission{
		ID:               "c-earlier",
		AffiliateID:      "aff-1",
		ReferralID:       "ref-1",
		BillingReference: "in_sub_1",
		GrossAmountCents: 1000,
		Rate:             0.5,
		AmountCents:      500,
		Currency:         "usd",
		Status:           models.CommissionStatusApproved,
	}).Error)

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Errors)

	ref := f.loadReferral(t, "ref-1")
	assert.Equal(t, models.ReferralStatusQualified, ref.Status)
	assert.Nil(t, ref.ClaimToken)

	var n int64
	require.NoError(t, f.db.Model(&models.Commission{}).Where("referral_id = ?", "ref-1").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	var aff models.Affiliate
	require.NoError(t, f.db.Where("id = ?", "aff-1").First(&aff).Error)
	assert.Zero(t, aff.TotalEarnedCents)

	// nothing left for the next run
	result, err = f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestRun_DefaultRateApplied(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))
	f.gateway.ActiveSubscription("buyer@example.com", "sub_1", 1000)

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CalculateCommission(1000, DefaultCommissionRate), result.CommissionCents)
}

func TestRun_ChurnReasons(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	f.referral(t, "ref-none", "aff-1", "ghost@example.com", f.now.Add(-time.Hour))
	f.referral(t, "ref-cancel", "aff-1", "quitter@example.com", f.now.Add(-time.Hour))
	f.gateway.Subscriptions["quitter@example.com"] = &payments.SubscriptionLookup{
		CustomerFound:     true,
		SubscriptionCount: 2,
	}

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Churned)

	none := f.loadReferral(t, "ref-none")
	assert.Equal(t, models.ReferralStatusChurned, none.Status)
	assert.Equal(t, models.ChurnReasonNoSubscription, none.ChurnReason)

	cancelled := f.loadReferral(t, "ref-cancel")
	assert.Equal(t, models.ReferralStatusChurned, cancelled.Status)
	assert.Equal(t, models.ChurnReasonSubscriptionCancelled, cancelled.ChurnReason)

	var count int64
	require.NoError(t, f.db.Model(&models.Commission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRun_SelectsOnlyDueReferralsOfApprovedAffiliates(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-ok", models.AffiliateStatusApproved, nil)
	f.affiliate(t, "aff-pending", models.AffiliateStatusPending, nil)
	f.referral(t, "ref-due", "aff-ok", "a@example.com", f.now.Add(-time.Minute))
	f.referral(t, "ref-future", "aff-ok", "b@example.com", f.now.Add(time.Hour))
	f.referral(t, "ref-unapproved", "aff-pending", "c@example.com", f.now.Add(-time.Hour))

	due, err := f.job(config.CommissionsConfig{}).DueReferrals(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ref-due", due[0].ID)
}

func TestRun_GatewayErrorLeavesReferralPending(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))
	f.gateway.LookupErr = errors.New("stripe unavailable")

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	ref := f.loadReferral(t, "ref-1")
	assert.Equal(t, models.ReferralStatusPending, ref.Status)
	assert.Nil(t, ref.ClaimToken)
	assert.Nil(t, ref.ClaimedAt)
}

func TestRun_MissingUserReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	require.NoError(t, f.db.Create(&models.Referral{
		ID:             "ref-orphan",
		AffiliateID:    "aff-1",
		ReferredUserID: "deleted-user",
		Status:         models.ReferralStatusPending,
		QualifiesAt:    f.now.Add(-time.Hour),
	}).Error)

	result, err := f.job(config.CommissionsConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, f.gateway.LookupCalls)

	ref := f.loadReferral(t, "ref-orphan")
	assert.Equal(t, models.ReferralStatusPending, ref.Status)
	assert.Nil(t, ref.ClaimToken)
}

func TestClaim_RespectsTTL(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))

	j := f.job(config.CommissionsConfig{ClaimTTLMinutes: 30})

	_, err := j.claim(context.Background(), "ref-1")
	require.NoError(t, err)

	_, err = j.claim(context.Background(), "ref-1")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// an abandoned claim can be taken over after the TTL
	f.now = f.now.Add(31 * time.Minute)
	_, err = j.claim(context.Background(), "ref-1")
	assert.NoError(t, err)
}

func TestRun_ConcurrentRunsProduceOneCommission(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, "aff-1", models.AffiliateStatusApproved, nil)
	f.referral(t, "ref-1", "aff-1", "buyer@example.com", f.now.Add(-time.Hour))
	f.gateway.ActiveSubscription("buyer@example.com", "sub_1", 1000)
	// keep both runs inside the settlement window at the same time
	f.gateway.LookupDelay = 50 * time.Millisecond

	jobA := f.job(config.CommissionsConfig{})
	jobB := f.job(config.CommissionsConfig{})

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i, j := range []*Job{jobA, jobB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := j.Run(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.db.Model(&models.Commission{}).Where("referral_id = ?", "ref-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	qualified := 0
	for _, r := range results {
		if r != nil {
			qualified += r.Qualified
		}
	}
	assert.Equal(t, 1, qualified)

	var aff models.Affiliate
	require.NoError(t, f.db.Where("id = ?", "aff-1").First(&aff).Error)
	assert.Equal(t, int64(200), aff.TotalEarnedCents)
}
