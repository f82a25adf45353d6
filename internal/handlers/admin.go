package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cache"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cleanup"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/scheduler"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/snapshot"
)

const statsCacheTTL = 30 * time.Second

// SyncRunLister exposes recorded sync runs
type SyncRunLister interface {
	RecentRuns(limit int) ([]models.SyncRun, error)
	StaleRuns(olderThan time.Duration) ([]models.SyncRun, error)
}

// NotificationLister reads in-app notifications
type NotificationLister interface {
	Unread(userID string, limit int) ([]models.Notification, error)
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	db              *gorm.DB
	runs            SyncRunLister
	scheduler       *scheduler.Scheduler
	snapshotService *snapshot.Service
	cleanupService  *cleanup.Service
	cache           *cache.Cache
	notifications   NotificationLister
	log             *logrus.Entry
}

// NewAdminHandler creates a new admin handler. sched, c and notifications may be nil.
func NewAdminHandler(db *gorm.DB, runs SyncRunLister, sched *scheduler.Scheduler, cleanupService *cleanup.Service, c *cache.Cache, notifications NotificationLister) *AdminHandler {
	return &AdminHandler{
		db:              db,
		runs:            runs,
		scheduler:       sched,
		snapshotService: snapshot.NewService(db),
		cleanupService:  cleanupService,
		cache:           c,
		notifications:   notifications,
		log:             logging.ForComponent("admin"),
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	if h.cache == nil {
		stats, err := h.collectStats(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	var stats map[string]interface{}
	err := h.cache.GetOrFetch(c.Request.Context(), "admin:stats", statsCacheTTL, &stats,
		func(ctx context.Context) (interface{}, error) {
			return h.collectStats(ctx)
		})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) collectStats(ctx context.Context) (map[string]interface{}, error) {
	db := h.db.WithContext(ctx)
	stats := make(map[string]interface{})

	// the first failing query aborts the whole payload so a partial result never gets cached
	var queryErr error
	count := func(q *gorm.DB, dest *int64) {
		if queryErr == nil {
			queryErr = q.Count(dest).Error
		}
	}

	// Property counts by status
	var activeCount, removedCount, publishedCount int64
	count(db.Model(&models.Property{}).Where("status = ?", models.PropertyStatusActive), &activeCount)
	count(db.Model(&models.Property{}).Where("status = ?", models.PropertyStatusRemoved), &removedCount)
	count(db.Model(&models.Property{}).Where("is_published = ?", true), &publishedCount)

	stats["properties"] = map[string]interface{}{
		"active":    activeCount,
		"removed":   removedCount,
		"published": publishedCount,
		"total":     activeCount + removedCount,
	}

	// Sync activity (last 24 hours)
	last24h := time.Now().UTC().AddDate(0, 0, -1)
	var recentlySynced, runsLast24h int64
	count(db.Model(&models.Property{}).Where("last_synced_at >= ?", last24h), &recentlySynced)
	count(db.Model(&models.SyncRun{}).Where("started_at >= ?", last24h), &runsLast24h)
	stats["recent_activity"] = map[string]interface{}{
		"synced_last_24h": recentlySynced,
		"runs_last_24h":   runsLast24h,
	}

	var snapshotCount int64
	count(db.Model(&models.PropertySnapshot{}), &snapshotCount)
	stats["snapshots"] = map[string]interface{}{
		"total": snapshotCount,
	}

	last7days := time.Now().UTC().AddDate(0, 0, -7)
	var recentChanges int64
	count(db.Model(&models.PropertyChange{}).Where("detected_at >= ?", last7days), &recentChanges)
	stats["changes"] = map[string]interface{}{
		"last_7_days": recentChanges,
	}

	// Affiliate program
	var pendingReferrals, unpaidCommissions int64
	var unpaidCents struct{ Total int64 }
	count(db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusPending), &pendingReferrals)
	count(db.Model(&models.Commission{}).Where("status = ?", models.CommissionStatusApproved), &unpaidCommissions)
	if queryErr == nil {
		queryErr = db.Model(&models.Commission{}).Select("COALESCE(SUM(amount_cents), 0) AS total").
			Where("status = ?", models.CommissionStatusApproved).Scan(&unpaidCents).Error
	}
	if queryErr != nil {
		return nil, queryErr
	}
	stats["affiliates"] = map[string]interface{}{
		"pending_referrals":  pendingReferrals,
		"unpaid_commissions": unpaidCommissions,
		"unpaid_cents":       unpaidCents.Total,
	}

	if h.cleanupService != nil {
		deleteStats, err := h.cleanupService.GetDeleteStats()
		if err != nil {
			return nil, err
		}
		stats["deletions"] = deleteStats
	}

	return stats, nil
}

// GetSyncRuns returns the most recent sync runs
func (h *AdminHandler) GetSyncRuns(c *gin.Context) {
	runs, err := h.runs.RecentRuns(queryLimit(c, 20, 200))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetStaleRuns returns runs still marked running after ?older_than_minutes (default 60)
func (h *AdminHandler) GetStaleRuns(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("older_than_minutes", "60"))
	if err != nil || minutes <= 0 {
		respondError(c, http.StatusBadRequest, errors.New("invalid older_than_minutes"))
		return
	}

	runs, err := h.runs.StaleRuns(time.Duration(minutes) * time.Minute)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetUserNotifications returns a user's unread notifications
func (h *AdminHandler) GetUserNotifications(c *gin.Context) {
	if h.notifications == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("notifications not available"))
		return
	}
	notifications, err := h.notifications.Unread(c.Param("id"), queryLimit(c, 20, 100))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// GetJobs lists scheduled jobs
func (h *AdminHandler) GetJobs(c *gin.Context) {
	if h.scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("scheduler not available"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.scheduler.Jobs()})
}

// TriggerJob runs a scheduled job now, in the background
func (h *AdminHandler) TriggerJob(c *gin.Context) {
	if h.scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("scheduler not available"))
		return
	}

	name := c.Param("name")
	found := false
	for _, j := range h.scheduler.Jobs() {
		if j.Name == name {
			found = true
			if j.Running {
				respondError(c, http.StatusConflict, scheduler.ErrJobRunning)
				return
			}
		}
	}
	if !found {
		respondError(c, http.StatusNotFound, scheduler.ErrUnknownJob)
		return
	}

	h.log.WithField("job", name).Info("Manual job trigger requested")

	go func() {
		if err := h.scheduler.RunNow(context.Background(), name); err != nil {
			h.log.WithError(err).WithField("job", name).Error("Manual job run failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job":     name,
		"status":  "running",
	})
}

// RunCleanup marks stale listings and physically deletes old removed ones
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int  `json:"retention_days"`
		MaxDeletionCount int  `json:"max_deletion_count"`
		DryRun           bool `json:"dry_run"`
	}

	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	opts := h.cleanupService.DefaultOptions()
	if req.RetentionDays > 0 {
		opts.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		opts.MaxDeletionCount = req.MaxDeletionCount
	}
	opts.DryRun = req.DryRun

	h.log.Infof("Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		opts.RetentionDays, opts.MaxDeletionCount, opts.DryRun)

	result, err := h.cleanupService.Run(c.Request.Context(), opts)
	if err != nil {
		h.log.WithError(err).Error("Cleanup failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	logs, err := h.cleanupService.GetRecentDeleteLogs(queryLimit(c, 100, 1000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetPropertyHistory returns snapshot history for a property
func (h *AdminHandler) GetPropertyHistory(c *gin.Context) {
	propertyID := c.Param("id")

	snapshots, err := h.snapshotService.GetPropertyHistory(propertyID, queryLimit(c, 30, 365))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"snapshots":   snapshots,
		"count":       len(snapshots),
	})
}

// GetRecentChanges returns recent property changes
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	changes, err := h.snapshotService.GetRecentChanges(queryLimit(c, 100, 1000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// GetAreaStats returns active listing counts by area
func (h *AdminHandler) GetAreaStats(c *gin.Context) {
	type AreaStat struct {
		Area  string `json:"area"`
		Count int64  `json:"count"`
	}

	var stats []AreaStat
	err := h.db.Model(&models.Property{}).
		Select("location_area AS area, count(*) as count").
		Where("status = ? AND location_area IS NOT NULL AND location_area != ''", models.PropertyStatusActive).
		Group("location_area").
		Order("count DESC").
		Limit(20).
		Scan(&stats).Error

	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"area_stats": stats,
		"count":      len(stats),
	})
}

// GetPriceDistribution returns the asking price distribution of active listings
func (h *AdminHandler) GetPriceDistribution(c *gin.Context) {
	type PriceRange struct {
		RangeLabel string `json:"range_label"`
		MinPrice   int64  `json:"min_price"`
		MaxPrice   int64  `json:"max_price"`
		Count      int64  `json:"count"`
	}

	// AED
	ranges := []PriceRange{
		{RangeLabel: "< 1M", MinPrice: 0, MaxPrice: 1000000},
		{RangeLabel: "1M - 2M", MinPrice: 1000000, MaxPrice: 2000000},
		{RangeLabel: "2M - 5M", MinPrice: 2000000, MaxPrice: 5000000},
		{RangeLabel: "5M - 10M", MinPrice: 5000000, MaxPrice: 10000000},
		{RangeLabel: "10M+", MinPrice: 10000000, MaxPrice: 1 << 62},
	}

	for i := range ranges {
		var count int64
		h.db.Model(&models.Property{}).
			Where("status = ? AND price >= ? AND price < ?",
				models.PropertyStatusActive, ranges[i].MinPrice, ranges[i].MaxPrice).
			Count(&count)
		ranges[i].Count = count
	}

	c.JSON(http.StatusOK, gin.H{
		"price_distribution": ranges,
	})
}
