// Package payout transfers approved affiliate commissions to connected accounts.
package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/notify"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
)

// DefaultMinimumCents is the smallest batch worth a transfer
const DefaultMinimumCents int64 = 5000

// Skip reasons
const (
	ReasonAccountNotReady  = "account_not_ready"
	ReasonAccountLookup    = "account_lookup_failed"
	ReasonBelowMinimum     = "below_minimum"
	ReasonNothingToPay     = "no_approved_commissions"
	ReasonAlreadyReserved  = "commissions_reserved_by_other_run"
	ReasonBookkeepingError = "bookkeeping_failed"
)

var (
	errReservedElsewhere = errors.New(ReasonAlreadyReserved)
	errBelowMinimum      = errors.New(ReasonBelowMinimum)
)

// AffiliateResult is the outcome for one affiliate
type AffiliateResult struct {
	AffiliateID string `json:"affiliate_id"`
	Status      string `json:"status"`
	PayoutID    string `json:"payout_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Result summarises a payout run
type Result struct {
	Processed      int               `json:"processed"`
	Paid           int               `json:"paid"`
	Skipped        int               `json:"skipped"`
	Failed         int               `json:"failed"`
	TotalPaidCents int64             `json:"total_paid_cents"`
	Affiliates     []AffiliateResult `json:"affiliates"`
}

const (
	statusPaid    = "paid"
	statusSkipped = "skipped"
	statusFailed  = "failed"
)

// Job pays out approved commissions
type Job struct {
	db           *gorm.DB
	gateway      payments.Gateway
	notifier     *notify.Notifier
	minimumCents int64
	currency     string
	concurrency  int
	now          func() time.Time
	log          *logrus.Entry
}

// NewJob creates a payout job. notifier may be nil.
func NewJob(db *gorm.DB, gateway payments.Gateway, notifier *notify.Notifier, cfg config.PayoutsConfig) *Job {
	minimum := cfg.MinimumCents
	if minimum <= 0 {
		minimum = DefaultMinimumCents
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Job{
		db:           db,
		gateway:      gateway,
		notifier:     notifier,
		minimumCents: minimum,
		currency:     currency,
		concurrency:  concurrency,
		now:          time.Now,
		log:          logging.ForComponent("payout"),
	}
}

// EligibleAffiliates lists approved affiliates with a connected account
func (j *Job) EligibleAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := j.db.WithContext(ctx).
		Where("status = ? AND stripe_account_id IS NOT NULL AND stripe_account_id <> ''", models.AffiliateStatusApproved).
		Order("id ASC").
		Find(&affiliates).Error
	return affiliates, err
}

// Run pays every eligible affiliate whose approved commissions reach the minimum
func (j *Job) Run(ctx context.Context) (*Result, error) {
	affiliates, err := j.EligibleAffiliates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load affiliates: %w", err)
	}

	j.log.Infof("Payout run started: %d eligible affiliates", len(affiliates))

	results := make([]AffiliateResult, len(affiliates))
	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for i, aff := range affiliates {
		g.Go(func() error {
			results[i] = j.payAffiliate(ctx, aff)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Affiliates: results}
	for _, r := range results {
		result.Processed++
		switch r.Status {
		case statusPaid:
			result.Paid++
			result.TotalPaidCents += r.AmountCents
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
		}
	}

	j.log.WithFields(logrus.Fields{
		"processed":        result.Processed,
		"paid":             result.Paid,
		"skipped":          result.Skipped,
		"failed":           result.Failed,
		"total_paid_cents": result.TotalPaidCents,
	}).Info("Payout run finished")

	return result, nil
}

func (j *Job) payAffiliate(ctx context.Context, aff models.Affiliate) AffiliateResult {
	res := AffiliateResult{AffiliateID: aff.ID}
	log := j.log.WithField("affiliate_id", aff.ID)
	if !aff.HasConnectedAccount() {
		res.Status, res.Reason = statusSkipped, ReasonAccountNotReady
		return res
	}

	acct, err := j.gateway.GetConnectedAccount(ctx, *aff.StripeAccountID)
	if err != nil {
		log.WithError(err).Warn("Connected account lookup failed, skipping")
		res.Status, res.Reason = statusSkipped, ReasonAccountLookup
		return res
	}
	if !acct.CanReceiveTransfers() {
		log.Warn("Connected account cannot receive transfers, moving affiliate back to pending")
		if err := j.db.WithContext(ctx).Model(&models.Affiliate{}).
			Where("id = ? AND status = ?", aff.ID, models.AffiliateStatusApproved).
			Update("status", models.AffiliateStatusPending).Error; err != nil {
			log.WithError(err).Error("Failed to update affiliate status")
		}
		res.Status, res.Reason = statusSkipped, ReasonAccountNotReady
		return res
	}

	total, count, err := j.unpaidTotal(ctx, aff.ID)
	if err != nil {
		log.WithError(err).Error("Failed to sum approved commissions")
		res.Status, res.Reason = statusFailed, ReasonBookkeepingError
		return res
	}
	if count == 0 {
		res.Status, res.Reason = statusSkipped, ReasonNothingToPay
		return res
	}
	if total < j.minimumCents {
		log.WithFields(logrus.Fields{"total_cents": total, "minimum_cents": j.minimumCents}).
			Info("Approved commissions below payout minimum, skipping")
		res.Status, res.Reason = statusSkipped, ReasonBelowMinimum
		res.AmountCents = total
		return res
	}

	payout, err := j.reserve(ctx, aff.ID)
	switch {
	case errors.Is(err, errReservedElsewhere):
		res.Status, res.Reason = statusSkipped, ReasonAlreadyReserved
		return res
	case errors.Is(err, errBelowMinimum):
		// another run took part of the batch between the sum and the reservation
		res.Status, res.Reason = statusSkipped, ReasonBelowMinimum
		res.AmountCents = payout.AmountCents
		return res
	case err != nil:
		log.WithError(err).Error("Failed to create payout")
		res.Status, res.Reason = statusFailed, ReasonBookkeepingError
		return res
	}
	res.PayoutID = payout.ID
	res.AmountCents = payout.AmountCents
	log = log.WithField("payout_id", payout.ID)

	transfer, err := j.gateway.CreateTransfer(ctx, payments.TransferRequest{
		AmountCents:    payout.AmountCents,
		Currency:       payout.Currency,
		Destination:    *aff.StripeAccountID,
		IdempotencyKey: payout.ID,
		Metadata: map[string]string{
			"payout_id":    payout.ID,
			"affiliate_id": aff.ID,
		},
	})
	if err != nil {
		reason := payments.FailureReason(err)
		log.WithError(err).WithField("reason", reason).Warn("Transfer failed")
		j.releaseFailed(ctx, payout, reason, log)
		res.Status, res.Reason = statusFailed, reason
		return res
	}

	if err := j.complete(ctx, payout, transfer.ID); err != nil {
		// the money moved; leave the payout processing with its commissions reserved
		log.WithError(err).WithField("transfer_id", transfer.ID).Error("Transfer succeeded but bookkeeping failed")
		res.Status, res.Reason = statusFailed, ReasonBookkeepingError
		return res
	}

	log.WithFields(logrus.Fields{
		"amount_cents": payout.AmountCents,
		"transfer_id":  transfer.ID,
		"commissions":  payout.CommissionCount,
	}).Info("Payout completed")

	j.notify(ctx, aff, payout, log)

	res.Status = statusPaid
	return res
}

func (j *Job) unpaidTotal(ctx context.Context, affiliateID string) (int64, int64, error) {
	var agg struct {
		Total int64
		Count int64
	}
	err := j.db.WithContext(ctx).Model(&models.Commission{}).
		Select("COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS count").
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, models.CommissionStatusApproved).
		Scan(&agg).Error
	return agg.Total, agg.Count, err
}

// reserve assigns every unassigned approved commission to a new processing payout.
// A commission can only ever be reserved by one payout. When the reserved sum is below
// the minimum the transaction rolls back, no payout row exists and errBelowMinimum is
// returned with the payout carrying the sum.
func (j *Job) reserve(ctx context.Context, affiliateID string) (*models.Payout, error) {
	payout := &models.Payout{
		ID:          uuid.NewString(),
		AffiliateID: affiliateID,
		Currency:    j.currency,
		Status:      models.PayoutStatusProcessing,
	}

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Commission{}).
			Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, models.CommissionStatusApproved).
			Update("payout_id", payout.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errReservedElsewhere
		}

		var agg struct {
			Total int64
		}
		if err := tx.Model(&models.Commission{}).
			Select("COALESCE(SUM(amount_cents), 0) AS total").
			Where("payout_id = ?", payout.ID).
			Scan(&agg).Error; err != nil {
			return err
		}

		payout.AmountCents = agg.Total
		payout.CommissionCount = int(res.RowsAffected)
		if payout.AmountCents < j.minimumCents {
			return errBelowMinimum
		}
		return tx.Create(payout).Error
	})
	if errors.Is(err, errBelowMinimum) {
		return payout, err
	}
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// releaseFailed marks the payout failed and hands its commissions back for the next run
func (j *Job) releaseFailed(ctx context.Context, payout *models.Payout, reason string, log *logrus.Entry) {
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payout{}).Where("id = ?", payout.ID).Updates(map[string]interface{}{
			"status":         models.PayoutStatusFailed,
			"failure_reason": reason,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Commission{}).
			Where("payout_id = ? AND status = ?", payout.ID, models.CommissionStatusApproved).
			Update("payout_id", nil).Error
	})
	if err != nil {
		log.WithError(err).Error("Failed to record payout failure")
		return
	}
	payout.Status = models.PayoutStatusFailed
	payout.FailureReason = reason
}

func (j *Job) complete(ctx context.Context, payout *models.Payout, transferID string) error {
	now := j.now().UTC()
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payout{}).Where("id = ?", payout.ID).Updates(map[string]interface{}{
			"status":             models.PayoutStatusCompleted,
			"stripe_transfer_id": transferID,
			"completed_at":       now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Commission{}).
			Where("payout_id = ? AND status = ?", payout.ID, models.CommissionStatusApproved).
			Updates(map[string]interface{}{
				"status":  models.CommissionStatusPaid,
				"paid_at": now,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", payout.AffiliateID).
			UpdateColumn("total_paid_cents", gorm.Expr("total_paid_cents + ?", payout.AmountCents)).Error
	})
	if err != nil {
		return err
	}

	payout.Status = models.PayoutStatusCompleted
	payout.StripeTransferID = &transferID
	payout.CompletedAt = &now
	return nil
}

func (j *Job) notify(ctx context.Context, aff models.Affiliate, payout *models.Payout, log *logrus.Entry) {
	if j.notifier == nil {
		return
	}

	var user models.User
	if err := j.db.WithContext(ctx).Where("id = ?", aff.UserID).First(&user).Error; err != nil {
		log.WithError(err).Warn("Affiliate user not found, payout notification skipped")
		return
	}
	if err := j.notifier.PayoutCompleted(ctx, &user, payout); err != nil {
		log.WithError(err).Warn("Failed to deliver payout notification")
	}
}
