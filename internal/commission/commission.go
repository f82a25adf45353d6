// Package commission settles pending referrals into commissions.
package commission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
)

// DefaultCommissionRate applies when neither the affiliate nor the config sets a rate
const DefaultCommissionRate = 0.20

var (
	// ErrAlreadyClaimed means another run holds the referral
	ErrAlreadyClaimed = errors.New("referral already claimed")

	errUserNotFound     = errors.New("referred user not found")
	errCommissionExists = errors.New("commission already recorded for billing reference")
)

// CalculateCommission returns the commission in minor units, rounded half away from zero
func CalculateCommission(grossCents int64, rate float64) int64 {
	return int64(math.Round(float64(grossCents) * rate))
}

// EffectiveRate returns the affiliate's own rate, else defaultRate, else DefaultCommissionRate
func EffectiveRate(aff *models.Affiliate, defaultRate float64) float64 {
	if aff != nil && aff.CommissionRate != nil && *aff.CommissionRate > 0 {
		return *aff.CommissionRate
	}
	if defaultRate > 0 {
		return defaultRate
	}
	return DefaultCommissionRate
}

// Result summarises a settlement run
type Result struct {
	Processed       int   `json:"processed"`
	Qualified       int   `json:"qualified"`
	Churned         int   `json:"churned"`
	Skipped         int   `json:"skipped"`
	Errors          int   `json:"errors"`
	CommissionCents int64 `json:"commission_cents"`
}

type outcome int

const (
	outcomeQualified outcome = iota
	outcomeChurned
	outcomeSkipped
	outcomeError
)

// Job settles due referrals
type Job struct {
	db          *gorm.DB
	gateway     payments.Gateway
	defaultRate float64
	concurrency int
	claimTTL    time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewJob creates a settlement job
func NewJob(db *gorm.DB, gateway payments.Gateway, cfg config.CommissionsConfig) *Job {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	claimTTL := cfg.GetClaimTTL()
	if claimTTL <= 0 {
		claimTTL = 30 * time.Minute
	}
	return &Job{
		db:          db,
		gateway:     gateway,
		defaultRate: cfg.DefaultRate,
		concurrency: concurrency,
		claimTTL:    claimTTL,
		now:         time.Now,
		log:         logging.ForComponent("commission"),
	}
}

// DueReferrals lists pending referrals past their qualification date whose affiliate is approved
func (j *Job) DueReferrals(ctx context.Context) ([]models.Referral, error) {
	var referrals []models.Referral
	err := j.db.WithContext(ctx).
		Model(&models.Referral{}).
		Joins("JOIN affiliates ON affiliates.id = referrals.affiliate_id").
		Where("referrals.status = ? AND referrals.qualifies_at <= ? AND affiliates.status = ?",
			models.ReferralStatusPending, j.now().UTC(), models.AffiliateStatusApproved).
		Order("referrals.qualifies_at ASC").
		Find(&referrals).Error
	return referrals, err
}

// Run settles every due referral
func (j *Job) Run(ctx context.Context) (*Result, error) {
	referrals, err := j.DueReferrals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load due referrals: %w", err)
	}

	j.log.Infof("Commission settlement started: %d due referrals", len(referrals))

	result := &Result{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for _, ref := range referrals {
		g.Go(func() error {
			out, cents := j.settle(ctx, ref)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch out {
			case outcomeQualified:
				result.Qualified++
				result.CommissionCents += cents
			case outcomeChurned:
				result.Churned++
			case outcomeSkipped:
				result.Skipped++
			case outcomeError:
				result.Errors++
			}
			return nil
		})
	}
	_ = g.Wait()

	j.log.WithFields(logrus.Fields{
		"processed":        result.Processed,
		"qualified":        result.Qualified,
		"churned":          result.Churned,
		"skipped":          result.Skipped,
		"errors":           result.Errors,
		"commission_cents": result.CommissionCents,
	}).Info("Commission settlement finished")

	return result, nil
}

func (j *Job) settle(ctx context.Context, ref models.Referral) (outcome, int64) {
	log := j.log.WithFields(logrus.Fields{"referral_id": ref.ID, "affiliate_id": ref.AffiliateID})

	token, err := j.claim(ctx, ref.ID)
	if errors.Is(err, ErrAlreadyClaimed) {
		log.Debug("Referral claimed by another run, skipping")
		return outcomeSkipped, 0
	}
	if err != nil {
		log.WithError(err).Error("Failed to claim referral")
		return outcomeError, 0
	}

	out, cents, err := j.process(ctx, ref, token, log)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			log.Warn("Claim lost before settlement, skipping")
			return outcomeSkipped, 0
		}
		log.WithError(err).Warn("Settlement failed, referral left pending")
		if relErr := j.release(ref.ID, token); relErr != nil {
			log.WithError(relErr).Error("Failed to release referral claim")
		}
		return outcomeError, 0
	}
	return out, cents
}

// claim marks a referral as being processed by this run. It only succeeds while the
// referral is pending and unclaimed, or its claim is older than the claim TTL.
func (j *Job) claim(ctx context.Context, referralID string) (string, error) {
	now := j.now().UTC()
	token := uuid.NewString()

	res := j.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ? AND (claim_token IS NULL OR claimed_at < ?)",
			referralID, models.ReferralStatusPending, now.Add(-j.claimTTL)).
		Updates(map[string]interface{}{
			"claim_token": token,
			"claimed_at":  now,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrAlreadyClaimed
	}
	return token, nil
}

func (j *Job) release(referralID, token string) error {
	return j.db.Model(&models.Referral{}).
		Where("id = ? AND claim_token = ?", referralID, token).
		Updates(map[string]interface{}{
			"claim_token": nil,
			"claimed_at":  nil,
		}).Error
}

func (j *Job) process(ctx context.Context, ref models.Referral, token string, log *logrus.Entry) (outcome, int64, error) {
	var affiliate models.Affiliate
	if err := j.db.WithContext(ctx).Where("id = ?", ref.AffiliateID).First(&affiliate).Error; err != nil {
		return outcomeError, 0, fmt.Errorf("load affiliate: %w", err)
	}

	var user models.User
	err := j.db.WithContext(ctx).Where("id = ?", ref.ReferredUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcomeError, 0, errUserNotFound
	}
	if err != nil {
		return outcomeError, 0, fmt.Errorf("load referred user: %w", err)
	}

	lookup, err := j.gateway.FindActiveSubscription(ctx, user.Email)
	if err != nil {
		return outcomeError, 0, fmt.Errorf("subscription lookup: %w", err)
	}

	now := j.now().UTC()

	if lookup.Active == nil {
		reason := models.ChurnReasonNoSubscription
		if lookup.CustomerFound && lookup.SubscriptionCount > 0 {
			reason = models.ChurnReasonSubscriptionCancelled
		}

		res := j.db.WithContext(ctx).Model(&models.Referral{}).
			Where("id = ? AND claim_token = ?", ref.ID, token).
			Updates(map[string]interface{}{
				"status":       models.ReferralStatusChurned,
				"churn_reason": reason,
				"claim_token":  nil,
				"claimed_at":   nil,
			})
		if res.Error != nil {
			return outcomeError, 0, fmt.Errorf("mark churned: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return outcomeSkipped, 0, ErrAlreadyClaimed
		}

		log.WithField("reason", reason).Info("Referral churned")
		return outcomeChurned, 0, nil
	}

	sub := lookup.Active
	rate := EffectiveRate(&affiliate, j.defaultRate)
	amount := CalculateCommission(sub.GrossAmountCents, rate)
	currency := sub.Currency
	if currency == "" {
		currency = "usd"
	}

	err = j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Commission{}).
			Where("referral_id = ? AND billing_reference = ?", ref.ID, sub.BillingReference).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errCommissionExists
		}

		if err := qualify(tx, ref.ID, token, now); err != nil {
			return err
		}

		commission := &models.Commission{
			ID:                   uuid.NewString(),
			AffiliateID:          affiliate.ID,
			ReferralID:           ref.ID,
			BillingReference:     sub.BillingReference,
			StripeSubscriptionID: sub.ID,
			GrossAmountCents:     sub.GrossAmountCents,
			Rate:                 rate,
			AmountCents:          amount,
			Currency:             currency,
			Status:               models.CommissionStatusApproved,
		}
		if err := tx.Create(commission).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errCommissionExists
			}
			return err
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", affiliate.ID).
			UpdateColumn("total_earned_cents", gorm.Expr("total_earned_cents + ?", amount)).Error
	})
	if errors.Is(err, errCommissionExists) {
		// the referral must not stay pending or every run would retry it
		log.WithField("billing_reference", sub.BillingReference).
			Error("Commission already recorded for this referral, marking it qualified")
		if err := qualify(j.db.WithContext(ctx), ref.ID, token, now); err != nil {
			return outcomeError, 0, err
		}
		return outcomeSkipped, 0, nil
	}
	if err != nil {
		return outcomeError, 0, err
	}

	log.WithFields(logrus.Fields{
		"amount_cents": amount,
		"rate":         rate,
	}).Info("Referral qualified, commission approved")
	return outcomeQualified, amount, nil
}

// qualify moves a claimed referral to qualified and drops the claim
func qualify(db *gorm.DB, referralID, token string, now time.Time) error {
	res := db.Model(&models.Referral{}).
		Where("id = ? AND claim_token = ?", referralID, token).
		Updates(map[string]interface{}{
			"status":       models.ReferralStatusQualified,
			"qualified_at": now,
			"claim_token":  nil,
			"claimed_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}
