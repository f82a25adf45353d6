package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/commission"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ingest"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/listings"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payout"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/scheduler"
)

// Sync actions accepted by the bayut-sync endpoint
const (
	ActionBulkSync = "bulk_sync"
	ActionSyncArea = "sync_area"
	ActionStatus   = "status"
)

// Syncer runs listing syncs
type Syncer interface {
	SyncAreas(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	HasAPIKey() bool
	RecentRuns(limit int) ([]models.SyncRun, error)
}

// ScheduleRunner runs a stored sync schedule
type ScheduleRunner interface {
	RunSchedule(ctx context.Context, name, trigger string) (*scheduler.Outcome, error)
}

// CommissionRunner settles due referrals
type CommissionRunner interface {
	Run(ctx context.Context) (*commission.Result, error)
}

// PayoutRunner pays approved commissions
type PayoutRunner interface {
	Run(ctx context.Context) (*payout.Result, error)
}

// JobsHandler exposes the background jobs as POST endpoints
type JobsHandler struct {
	syncer          Syncer
	trigger         ScheduleRunner
	commissions     CommissionRunner
	payouts         PayoutRunner
	defaultAreas    []string
	defaultSchedule string
	log             *logrus.Entry
}

// NewJobsHandler creates a jobs handler
func NewJobsHandler(syncer Syncer, trigger ScheduleRunner, commissions CommissionRunner, payouts PayoutRunner, defaultAreas []string, defaultSchedule string) *JobsHandler {
	return &JobsHandler{
		syncer:          syncer,
		trigger:         trigger,
		commissions:     commissions,
		payouts:         payouts,
		defaultAreas:    defaultAreas,
		defaultSchedule: defaultSchedule,
		log:             logging.ForComponent("handlers"),
	}
}

type syncRequest struct {
	Action   string   `json:"action"`
	Areas    []string `json:"areas"`
	Area     string   `json:"area"`
	MaxPages int      `json:"max_pages"`
}

// bindOptionalJSON accepts an empty body
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// BayutSync handles POST /functions/bayut-sync
func (h *JobsHandler) BayutSync(c *gin.Context) {
	var req syncRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.MaxPages < 0 {
		respondError(c, http.StatusBadRequest, errors.New("max_pages must not be negative"))
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = ActionBulkSync
	}

	var areas []string
	switch action {
	case ActionStatus:
		runs, err := h.syncer.RecentRuns(10)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
		return
	case ActionBulkSync:
		areas = req.Areas
		if len(areas) == 0 {
			areas = h.defaultAreas
		}
	case ActionSyncArea:
		area := strings.TrimSpace(req.Area)
		if area == "" && len(req.Areas) > 0 {
			area = strings.TrimSpace(req.Areas[0])
		}
		if area == "" {
			respondError(c, http.StatusBadRequest, errors.New("area is required for sync_area"))
			return
		}
		areas = []string{area}
	default:
		respondError(c, http.StatusBadRequest, errors.New("unknown action: "+action))
		return
	}

	if !h.syncer.HasAPIKey() {
		h.log.Warn("Sync requested but listings API key is not configured")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"skipped": true,
			"reason":  listings.ErrMissingAPIKey.Error(),
		})
		return
	}

	result, err := h.syncer.SyncAreas(c.Request.Context(), ingest.Request{
		Areas:    areas,
		MaxPages: req.MaxPages,
		Trigger:  models.SyncTriggerManual,
	})
	if errors.Is(err, ingest.ErrNoAreas) {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Manual sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"result":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"action":            action,
		"run_id":            result.RunID,
		"status":            result.Status,
		"properties_synced": result.PropertiesSynced,
		"areas_failed":      result.AreasFailed,
		"result":            result,
	})
}

// ScheduledSync handles POST /functions/scheduled-bayut-sync
func (h *JobsHandler) ScheduledSync(c *gin.Context) {
	var req struct {
		Schedule string `json:"schedule"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Schedule)
	if name == "" {
		name = h.defaultSchedule
	}

	outcome, err := h.trigger.RunSchedule(c.Request.Context(), name, models.SyncTriggerSchedule)
	if err != nil {
		h.log.WithError(err).WithField("schedule", name).Error("Scheduled sync failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if outcome.Skipped {
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"skipped":  true,
			"schedule": name,
			"reason":   outcome.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"schedule":    name,
		"result":      outcome.Result,
		"next_run_at": outcome.NextRunAt,
	})
}

// ProcessCommissions handles POST /functions/process-commissions
func (h *JobsHandler) ProcessCommissions(c *gin.Context) {
	result, err := h.commissions.Run(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Commission processing failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"processed":        result.Processed,
		"qualified":        result.Qualified,
		"churned":          result.Churned,
		"skipped":          result.Skipped,
		"errors":           result.Errors,
		"commission_cents": result.CommissionCents,
	})
}

// ProcessPayouts handles POST /functions/process-affiliate-payouts
func (h *JobsHandler) ProcessPayouts(c *gin.Context) {
	result, err := h.payouts.Run(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Payout processing failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"processed":        result.Processed,
		"paid":             result.Paid,
		"skipped":          result.Skipped,
		"failed":           result.Failed,
		"total_paid_cents": result.TotalPaidCents,
		"affiliates":       result.Affiliates,
	})
}
