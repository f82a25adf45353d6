package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/database"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/search"
)

// errRelisted means a sync brought the listing back after it was selected for deletion
var errRelisted = errors.New("property is active again")

// Service marks listings that syncs stopped returning and physically deletes old removed ones
type Service struct {
	store   *database.GormDB
	db      *gorm.DB
	indexer search.Indexer
	cfg     config.CleanupConfig
	source  string
	now     func() time.Time
	log     *logrus.Entry
}

// NewService creates a new cleanup service. indexer may be nil.
func NewService(store *database.GormDB, indexer search.Indexer, source string, cfg config.CleanupConfig) *Service {
	if cfg.StaleDays <= 0 {
		cfg.StaleDays = 14
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.MaxDeletionCount <= 0 {
		cfg.MaxDeletionCount = 10000
	}
	return &Service{
		store:   store,
		db:      store.DB(),
		indexer: indexer,
		cfg:     cfg,
		source:  source,
		now:     time.Now,
		log:     logging.ForComponent("cleanup"),
	}
}

// Options control one deletion pass
type Options struct {
	RetentionDays    int  `json:"retention_days"`     // Days to keep removed properties before physical deletion
	MaxDeletionCount int  `json:"max_deletion_count"` // Abort when more properties than this are eligible
	DryRun           bool `json:"dry_run"`            // Only report what would be deleted
	DeleteFromSearch bool `json:"delete_from_search"`
}

// DefaultOptions returns the configured deletion options
func (s *Service) DefaultOptions() Options {
	return Options{
		RetentionDays:    s.cfg.RetentionDays,
		MaxDeletionCount: s.cfg.MaxDeletionCount,
		DeleteFromSearch: true,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	MarkedStale       int64     `json:"marked_stale"`
	TargetCount       int       `json:"target_count"`
	DeletedCount      int       `json:"deleted_count"`
	RelistedCount     int       `json:"relisted_count"`
	ErrorCount        int       `json:"error_count"`
	DryRun            bool      `json:"dry_run"`
	ExecutedAt        time.Time `json:"executed_at"`
	DeletedProperties []string  `json:"deleted_properties"`
	Errors            []string  `json:"errors,omitempty"`
}

// MarkStale flags active listings whose last sync is older than stale_days as removed
func (s *Service) MarkStale() (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.StaleDays)
	n, err := s.store.MarkStaleAsRemoved(s.source, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale properties: %w", err)
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"count": n, "cutoff": cutoff.Format("2006-01-02")}).
			Info("Marked stale properties as removed")
	}
	return n, nil
}

// FindExpiredProperties finds removed properties whose removed_at is older than retentionDays
func (s *Service) FindExpiredProperties(retentionDays int) ([]models.Property, error) {
	var properties []models.Property

	cutoffDate := s.now().UTC().AddDate(0, 0, -retentionDays)

	err := s.db.Where("status = ? AND removed_at IS NOT NULL AND removed_at < ?",
		models.PropertyStatusRemoved,
		cutoffDate,
	).Order("removed_at ASC").Find(&properties).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find expired properties: %w", err)
	}

	s.log.Debugf("Found %d properties expired before %s", len(properties), cutoffDate.Format("2006-01-02"))
	return properties, nil
}

// Run marks stale listings and then deletes expired ones
func (s *Service) Run(ctx context.Context, opts Options) (*CleanupResult, error) {
	var marked int64
	if !opts.DryRun {
		n, err := s.MarkStale()
		if err != nil {
			return nil, err
		}
		marked = n
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.PhysicallyDelete(opts)
	if err != nil {
		return nil, err
	}
	result.MarkedStale = marked
	return result, nil
}

// PhysicallyDelete removes expired properties with their images, snapshots and changes,
// leaving a DeleteLog row for each
func (s *Service) PhysicallyDelete(opts Options) (*CleanupResult, error) {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = s.cfg.RetentionDays
	}
	if opts.MaxDeletionCount <= 0 {
		opts.MaxDeletionCount = s.cfg.MaxDeletionCount
	}

	result := &CleanupResult{
		DryRun:            opts.DryRun,
		ExecutedAt:        s.now().UTC(),
		DeletedProperties: []string{},
	}

	expiredProperties, err := s.FindExpiredProperties(opts.RetentionDays)
	if err != nil {
		return nil, err
	}

	result.TargetCount = len(expiredProperties)

	if result.TargetCount == 0 {
		s.log.Info("No expired properties found for deletion")
		return result, nil
	}

	if result.TargetCount > opts.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d properties exceed max deletion limit of %d",
			result.TargetCount, opts.MaxDeletionCount)
	}

	s.log.Infof("Starting cleanup: %d properties to delete (retention: %d days, dry-run: %v)",
		result.TargetCount, opts.RetentionDays, opts.DryRun)

	for _, prop := range expiredProperties {
		if opts.DryRun {
			s.log.Infof("[DRY-RUN] Would delete property %s (Title: %s, RemovedAt: %s)",
				prop.ID, prop.Title, prop.RemovedAt.Format("2006-01-02"))
			result.DeletedProperties = append(result.DeletedProperties, prop.ID)
			result.DeletedCount++
			continue
		}

		err := s.deleteProperty(prop)
		if errors.Is(err, errRelisted) {
			s.log.Infof("Skipping property %s: active again since it was removed", prop.ID)
			result.RelistedCount++
			continue
		}
		if err != nil {
			errMsg := fmt.Sprintf("Failed to delete property %s: %v", prop.ID, err)
			s.log.Error(errMsg)
			result.Errors = append(result.Errors, errMsg)
			result.ErrorCount++
			continue
		}

		s.log.Debugf("Physically deleted property %s (Title: %s)", prop.ID, prop.Title)
		result.DeletedProperties = append(result.DeletedProperties, prop.ID)
		result.DeletedCount++
	}

	if !opts.DryRun && opts.DeleteFromSearch && s.indexer != nil && len(result.DeletedProperties) > 0 {
		if err := s.indexer.DeleteProperties(result.DeletedProperties); err != nil {
			s.log.WithError(err).Warn("Failed to delete properties from search index")
		}
	}

	s.log.Infof("Cleanup completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, opts.DryRun)

	return result, nil
}

func (s *Service) deleteProperty(prop models.Property) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var current models.Property
		if err := tx.Where("id = ?", prop.ID).First(&current).Error; err != nil {
			return err
		}
		if current.IsActive() {
			return errRelisted
		}

		deleteLog := models.DeleteLog{
			PropertyID:     prop.ID,
			ExternalID:     prop.ExternalID,
			ExternalSource: prop.ExternalSource,
			Title:          prop.Title,
			RemovedAt:      *prop.RemovedAt,
			Reason:         models.DeleteReasonExpired,
		}
		if err := tx.Create(&deleteLog).Error; err != nil {
			return fmt.Errorf("delete log: %w", err)
		}

		for _, dependent := range []interface{}{
			&models.PropertyImage{},
			&models.PropertyChange{},
			&models.PropertySnapshot{},
		} {
			if err := tx.Where("property_id = ?", prop.ID).Delete(dependent).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.Property{}, "id = ?", prop.ID).Error
	})
}

// GetDeleteStats returns statistics about deleted properties
func (s *Service) GetDeleteStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalDeleted int64
	if err := s.db.Model(&models.DeleteLog{}).Count(&totalDeleted).Error; err != nil {
		return nil, err
	}
	stats["total_deleted"] = totalDeleted

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := s.db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}

	reasonMap := make(map[string]int64)
	for _, rc := range reasonCounts {
		reasonMap[rc.Reason] = rc.Count
	}
	stats["by_reason"] = reasonMap

	var recentDeleted int64
	thirtyDaysAgo := s.now().UTC().AddDate(0, 0, -30)
	if err := s.db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", thirtyDaysAgo).
		Count(&recentDeleted).Error; err != nil {
		return nil, err
	}
	stats["deleted_last_30_days"] = recentDeleted

	var currentRemoved int64
	if err := s.db.Model(&models.Property{}).
		Where("status = ?", models.PropertyStatusRemoved).
		Count(&currentRemoved).Error; err != nil {
		return nil, err
	}
	stats["currently_removed"] = currentRemoved

	expiredProperties, err := s.FindExpiredProperties(s.cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	stats["expired_ready_for_deletion"] = len(expiredProperties)

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
