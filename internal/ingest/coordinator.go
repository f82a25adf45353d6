// Package ingest runs property syncs: fetch listings per area, transform and upsert them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/database"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/listings"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/search"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/snapshot"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/transform"
)

// ErrNoAreas is returned when a sync is requested without any area
var ErrNoAreas = errors.New("no areas to sync")

// Request describes one sync invocation
type Request struct {
	Areas        []string
	MaxPages     int
	Trigger      string
	ScheduleName string
}

// AreaResult is the outcome for a single area
type AreaResult struct {
	Area    string `json:"area"`
	Pages   int    `json:"pages"`
	Synced  int    `json:"synced"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// Result summarises a sync run
type Result struct {
	RunID            uint         `json:"run_id"`
	Status           string       `json:"status"`
	PropertiesSynced int          `json:"properties_synced"`
	Created          int          `json:"created"`
	Updated          int          `json:"updated"`
	AreasFailed      int          `json:"areas_failed"`
	Areas            []AreaResult `json:"areas"`
	DurationMs       int64        `json:"duration_ms"`
}

// Options tune the coordinator
type Options struct {
	Source          string
	Purpose         string
	HitsPerPage     int
	DefaultMaxPages int
	AreaConcurrency int
	TrackChanges    bool
}

// OptionsFromConfig reads coordinator options from the listings and sync sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Source:          cfg.Listings.Source,
		Purpose:         cfg.Listings.Purpose,
		HitsPerPage:     cfg.Listings.HitsPerPage,
		DefaultMaxPages: cfg.Sync.MaxPages,
		AreaConcurrency: cfg.Sync.AreaConcurrency,
		TrackChanges:    cfg.Sync.TrackChanges,
	}
}

// Coordinator fetches, transforms and stores listings, one SyncRun row per call
type Coordinator struct {
	fetcher   listings.Fetcher
	store     *database.GormDB
	snapshots *snapshot.Service
	indexer   search.Indexer
	opts      Options
	log       *logrus.Entry
	now       func() time.Time
}

// NewCoordinator creates a coordinator. indexer may be nil when search is disabled.
func NewCoordinator(fetcher listings.Fetcher, store *database.GormDB, indexer search.Indexer, opts Options) *Coordinator {
	if opts.Source == "" {
		opts.Source = "bayut"
	}
	if opts.DefaultMaxPages <= 0 {
		opts.DefaultMaxPages = 1
	}
	if opts.AreaConcurrency <= 0 {
		opts.AreaConcurrency = 1
	}

	c := &Coordinator{
		fetcher: fetcher,
		store:   store,
		indexer: indexer,
		opts:    opts,
		log:     logging.ForComponent("ingest"),
		now:     time.Now,
	}
	if opts.TrackChanges {
		c.snapshots = snapshot.NewService(store.DB())
	}
	return c
}

// HasAPIKey reports whether the listings source can be called
func (c *Coordinator) HasAPIKey() bool {
	return c.fetcher.HasAPIKey()
}

// SyncAreas syncs every requested area and records the run
func (c *Coordinator) SyncAreas(ctx context.Context, req Request) (*Result, error) {
	areas := normalizeAreas(req.Areas)
	if len(areas) == 0 {
		return nil, ErrNoAreas
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = c.opts.DefaultMaxPages
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = models.SyncTriggerManual
	}

	run := &models.SyncRun{
		ScheduleName: req.ScheduleName,
		Trigger:      trigger,
		Status:       models.SyncStatusRunning,
		Areas:        strings.Join(areas, ","),
		MaxPages:     maxPages,
		StartedAt:    c.now().UTC(),
	}
	if err := c.store.DB().Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	log := c.log.WithFields(logrus.Fields{"run_id": run.ID, "trigger": trigger})
	log.Infof("Sync started: %d areas, %d pages each", len(areas), maxPages)

	results := make([]AreaResult, len(areas))
	var g errgroup.Group
	g.SetLimit(c.opts.AreaConcurrency)
	for i, area := range areas {
		g.Go(func() error {
			results[i] = c.syncArea(ctx, area, maxPages)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{RunID: run.ID, Areas: results}
	var areaErrors []string
	for _, ar := range results {
		result.PropertiesSynced += ar.Synced
		result.Created += ar.Created
		result.Updated += ar.Updated
		if ar.Error != "" {
			result.AreasFailed++
			areaErrors = append(areaErrors, fmt.Sprintf("%s: %s", ar.Area, ar.Error))
		}
	}

	status := models.SyncStatusCompleted
	if err := ctx.Err(); err != nil {
		status = models.SyncStatusFailed
		areaErrors = append([]string{err.Error()}, areaErrors...)
	}

	run.PropertiesSynced = result.PropertiesSynced
	run.PropertiesCreated = result.Created
	run.PropertiesUpdated = result.Updated
	run.AreasFailed = result.AreasFailed
	run.Error = strings.Join(areaErrors, "; ")
	run.Finish(status, c.now().UTC())

	result.Status = run.Status
	result.DurationMs = run.DurationMs

	if err := c.store.DB().Save(run).Error; err != nil {
		log.WithError(err).Error("Failed to finish sync run")
		return result, fmt.Errorf("failed to finish sync run %d: %w", run.ID, err)
	}

	log.WithFields(logrus.Fields{
		"synced":       result.PropertiesSynced,
		"created":      result.Created,
		"updated":      result.Updated,
		"areas_failed": result.AreasFailed,
		"duration_ms":  result.DurationMs,
	}).Infof("Sync %s", status)

	if status == models.SyncStatusFailed {
		return result, fmt.Errorf("sync run %d interrupted: %w", run.ID, ctx.Err())
	}
	return result, nil
}

func (c *Coordinator) syncArea(ctx context.Context, area string, maxPages int) AreaResult {
	ar := AreaResult{Area: area}
	log := c.log.WithField("area", area)

	var batch []models.Property
	for page := 0; page < maxPages; page++ {
		if ctx.Err() != nil {
			ar.Error = ctx.Err().Error()
			break
		}

		resp, err := c.fetcher.FetchPage(ctx, listings.Query{
			LocationExternalID: area,
			Purpose:            c.opts.Purpose,
			HitsPerPage:        c.opts.HitsPerPage,
			Page:               page,
		})
		if err != nil {
			log.WithError(err).WithField("page", page).Warn("Failed to fetch listings page")
			ar.Error = err.Error()
			break
		}
		ar.Pages++

		for _, rec := range resp.Hits {
			if ctx.Err() != nil {
				break
			}
			property, ok := c.storeRecord(ctx, rec, &ar, log)
			if ok {
				batch = append(batch, *property)
			}
		}
		if ctx.Err() != nil {
			ar.Error = ctx.Err().Error()
			break
		}

		if len(resp.Hits) == 0 || page+1 >= resp.NbPages {
			break
		}
	}

	if c.indexer != nil && len(batch) > 0 {
		if err := c.indexer.IndexProperties(batch); err != nil {
			log.WithError(err).Warn("Failed to index synced properties")
		}
	}

	log.Infof("Area synced: %d properties (%d new, %d updated, %d skipped) over %d pages",
		ar.Synced, ar.Created, ar.Updated, ar.Skipped, ar.Pages)
	return ar
}

func (c *Coordinator) storeRecord(ctx context.Context, rec listings.SourceRecord, ar *AreaResult, log *logrus.Entry) (*models.Property, bool) {
	property, images, err := transform.ToProperty(rec, c.opts.Source, c.now().UTC())
	if err != nil {
		log.WithError(err).Warn("Skipping listing")
		ar.Skipped++
		return nil, false
	}

	previous, err := c.store.UpsertProperty(ctx, property, images)
	if err != nil {
		log.WithError(err).WithField("external_id", property.ExternalID).Error("Failed to upsert property")
		ar.Skipped++
		return nil, false
	}

	ar.Synced++
	if previous == nil {
		ar.Created++
	} else {
		ar.Updated++
	}

	if c.snapshots != nil {
		if _, err := c.snapshots.Record(ctx, property); err != nil {
			log.WithError(err).WithField("property_id", property.ID).Warn("Failed to record snapshot")
		}
	}

	return property, true
}

// RecentRuns returns the latest sync runs, newest first
func (c *Coordinator) RecentRuns(limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SyncRun
	err := c.store.DB().Order("started_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// StaleRuns lists runs still marked running after olderThan.
// Such rows are left by crashed processes and are not reaped automatically.
func (c *Coordinator) StaleRuns(olderThan time.Duration) ([]models.SyncRun, error) {
	cutoff := c.now().UTC().Add(-olderThan)
	var runs []models.SyncRun
	err := c.store.DB().
		Where("status = ? AND started_at < ?", models.SyncStatusRunning, cutoff).
		Order("started_at ASC").
		Find(&runs).Error
	return runs, err
}

func normalizeAreas(areas []string) []string {
	seen := make(map[string]bool, len(areas))
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
