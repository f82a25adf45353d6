package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ingest"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/listings"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

// Reasons a scheduled sync is skipped rather than run
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleDisabled = errors.New("schedule is disabled")
	ErrMissingAPIKey    = listings.ErrMissingAPIKey
	ErrNoAreas          = errors.New("schedule has no areas")
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRun returns the first activation of a cron expression strictly after now
func NextRun(spec string, now time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	next := schedule.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", spec)
	}
	return next, nil
}

// SyncRunner is the part of the sync coordinator the trigger drives
type SyncRunner interface {
	SyncAreas(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	HasAPIKey() bool
}

// Outcome reports what a schedule invocation did
type Outcome struct {
	Schedule  string         `json:"schedule"`
	Skipped   bool           `json:"skipped"`
	Reason    string         `json:"reason,omitempty"`
	Result    *ingest.Result `json:"result,omitempty"`
	NextRunAt *time.Time     `json:"next_run_at,omitempty"`
	SkipErr   error          `json:"-"`
}

func skipped(name string, reason error) *Outcome {
	return &Outcome{Schedule: name, Skipped: true, Reason: reason.Error(), SkipErr: reason}
}

// Trigger runs a sync described by a stored schedule row.
// The row is read as configuration; only last-run bookkeeping is written back.
type Trigger struct {
	db     *gorm.DB
	runner SyncRunner
	loc    *time.Location
	now    func() time.Time
	log    *logrus.Entry
}

// NewTrigger creates a schedule trigger evaluating cron expressions in loc
func NewTrigger(db *gorm.DB, runner SyncRunner, loc *time.Location) *Trigger {
	if loc == nil {
		loc = time.UTC
	}
	return &Trigger{
		db:     db,
		runner: runner,
		loc:    loc,
		now:    time.Now,
		log:    logging.ForComponent("scheduler"),
	}
}

// LoadSchedule reads a schedule row by name
func (t *Trigger) LoadSchedule(name string) (*models.SyncSchedule, error) {
	var schedule models.SyncSchedule
	err := t.db.Where("name = ?", name).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// RunSchedule runs the named schedule once. Configuration problems produce a
// skipped outcome and a nil error.
func (t *Trigger) RunSchedule(ctx context.Context, name, trigger string) (*Outcome, error) {
	schedule, err := t.LoadSchedule(name)
	if errors.Is(err, ErrScheduleNotFound) {
		t.log.WithField("schedule", name).Info("Sync skipped: schedule not found")
		return skipped(name, ErrScheduleNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", name, err)
	}

	if !schedule.Enabled {
		t.log.WithField("schedule", name).Info("Sync skipped: schedule disabled")
		return skipped(name, ErrScheduleDisabled), nil
	}
	if !t.runner.HasAPIKey() {
		t.log.WithField("schedule", name).Warn("Sync skipped: listings API key missing")
		return skipped(name, ErrMissingAPIKey), nil
	}
	areas := schedule.AreaList()
	if len(areas) == 0 {
		t.log.WithField("schedule", name).Warn("Sync skipped: no areas configured")
		return skipped(name, ErrNoAreas), nil
	}

	if trigger == "" {
		trigger = models.SyncTriggerSchedule
	}
	result, runErr := t.runner.SyncAreas(ctx, ingest.Request{
		Areas:        areas,
		MaxPages:     schedule.MaxPages,
		Trigger:      trigger,
		ScheduleName: schedule.Name,
	})

	now := t.now()
	updates := map[string]interface{}{
		"last_run_at": now.UTC(),
	}
	if result != nil {
		updates["last_run_status"] = result.Status
		updates["last_run_count"] = result.PropertiesSynced
		updates["last_run_duration_ms"] = result.DurationMs
	}
	if runErr != nil {
		updates["last_run_status"] = models.SyncStatusFailed
		updates["last_error"] = runErr.Error()
	} else {
		updates["last_error"] = ""
	}

	outcome := &Outcome{Schedule: schedule.Name, Result: result}
	next, err := NextRun(schedule.CronSpec, now.In(t.loc))
	if err != nil {
		t.log.WithError(err).WithField("schedule", name).Warn("Cannot compute next run")
	} else {
		nextUTC := next.UTC()
		updates["next_run_at"] = nextUTC
		outcome.NextRunAt = &nextUTC
	}

	if err := t.db.Model(&models.SyncSchedule{}).Where("id = ?", schedule.ID).Updates(updates).Error; err != nil {
		t.log.WithError(err).WithField("schedule", name).Error("Failed to record schedule run")
		if runErr == nil {
			return outcome, fmt.Errorf("failed to record schedule run: %w", err)
		}
	}

	if runErr != nil {
		return outcome, runErr
	}
	return outcome, nil
}

// EnsureDefaultSchedule seeds the configured sync schedule row if it does not exist yet.
// An existing row is left untouched.
func EnsureDefaultSchedule(db *gorm.DB, cfg *config.Config) (*models.SyncSchedule, error) {
	if _, err := NextRun(cfg.Sync.CronSpec, time.Now()); err != nil {
		return nil, err
	}

	defaults := models.SyncSchedule{
		CronSpec: cfg.Sync.CronSpec,
		Enabled:  cfg.Sync.ScheduleEnabled,
		MaxPages: cfg.Sync.MaxPages,
	}
	defaults.SetAreas(cfg.Listings.DefaultAreas)

	var schedule models.SyncSchedule
	err := db.Where(models.SyncSchedule{Name: cfg.Sync.ScheduleName}).
		Attrs(defaults).
		FirstOrCreate(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}
