package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/database"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ingest"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "scheduler.db")},
	})
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })
	return gdb.DB()
}

type fakeRunner struct {
	hasKey   bool
	requests []ingest.Request
	result   *ingest.Result
	err      error
}

func (f *fakeRunner) SyncAreas(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeRunner) HasAPIKey() bool {
	return f.hasKey
}

func TestNextRun(t *testing.T) {
	dubai := time.FixedZone("GST", 4*60*60)
	now := time.Date(2025, 3, 1, 2, 30, 0, 0, dubai)

	tests := []struct {
		name string
		spec string
		want time.Time
	}{
		{"daily at three", "0 3 * * *", time.Date(2025, 3, 1, 3, 0, 0, 0, dubai)},
		{"already past today", "0 1 * * *", time.Date(2025, 3, 2, 1, 0, 0, 0, dubai)},
		{"hourly", "0 * * * *", time.Date(2025, 3, 1, 3, 0, 0, 0, dubai)},
		{"descriptor", "@daily", time.Date(2025, 3, 2, 0, 0, 0, 0, dubai)},
		{"monthly", "0 6 1 * *", time.Date(2025, 3, 1, 6, 0, 0, 0, dubai)},
		{"monthly next month", "0 1 1 * *", time.Date(2025, 4, 1, 1, 0, 0, 0, dubai)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.spec, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}

	_, err := NextRun("not a cron", now)
	assert.Error(t, err)
}

func seedSchedule(t *testing.T, db *gorm.DB, enabled bool, areas string) {
	t.Helper()
	require.NoError(t, db.Create(&models.SyncSchedule{
		Name:     "bayut-daily",
		CronSpec: "0 3 * * *",
		Areas:    areas,
		MaxPages: 2,
	}).Error)
	// Enabled carries a database default, so set it explicitly
	require.NoError(t, db.Model(&models.SyncSchedule{}).Where("name = ?", "bayut-daily").
		Update("enabled", enabled).Error)
}

func TestRunSchedule_SkipRules(t *testing.T) {
	tests := []struct {
		name    string
		seed    bool
		enabled bool
		areas   string
		hasKey  bool
		want    error
	}{
		{"missing schedule", false, false, "", true, ErrScheduleNotFound},
		{"disabled", true, false, "5002", true, ErrScheduleDisabled},
		{"no api key", true, true, "5002", false, ErrMissingAPIKey},
		{"no areas", true, true, " , ", true, ErrNoAreas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			if tt.seed {
				seedSchedule(t, db, tt.enabled, tt.areas)
			}
			runner := &fakeRunner{hasKey: tt.hasKey}

			outcome, err := NewTrigger(db, runner, time.UTC).RunSchedule(context.Background(), "bayut-daily", "")
			require.NoError(t, err)
			assert.True(t, outcome.Skipped)
			assert.True(t, errors.Is(outcome.SkipErr, tt.want))
			assert.Equal(t, tt.want.Error(), outcome.Reason)
			assert.Empty(t, runner.requests)
		})
	}
}

func TestRunSchedule_RunsAndRecords(t *testing.T) {
	db := newTestDB(t)
	seedSchedule(t, db, true, "5002,6901")

	runner := &fakeRunner{
		hasKey: true,
		result: &ingest.Result{Status: models.SyncStatusCompleted, PropertiesSynced: 42, DurationMs: 1500},
	}
	trigger := NewTrigger(db, runner, time.UTC)
	now := time.Date(2025, 3, 1, 3, 0, 5, 0, time.UTC)
	trigger.now = func() time.Time { return now }

	outcome, err := trigger.RunSchedule(context.Background(), "bayut-daily", "")
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, []string{"5002", "6901"}, runner.requests[0].Areas)
	assert.Equal(t, 2, runner.requests[0].MaxPages)
	assert.Equal(t, models.SyncTriggerSchedule, runner.requests[0].Trigger)
	assert.Equal(t, "bayut-daily", runner.requests[0].ScheduleName)

	schedule, err := trigger.LoadSchedule("bayut-daily")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, schedule.LastRunStatus)
	assert.Equal(t, 42, schedule.LastRunCount)
	assert.Equal(t, int64(1500), schedule.LastRunDurationMs)
	require.NotNil(t, schedule.NextRunAt)
	assert.True(t, time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC).Equal(*schedule.NextRunAt))

	// configuration fields are never written by the trigger
	assert.True(t, schedule.Enabled)
	assert.Equal(t, "0 3 * * *", schedule.CronSpec)
}

func TestRunSchedule_RecordsFailure(t *testing.T) {
	db := newTestDB(t)
	seedSchedule(t, db, true, "5002")

	runner := &fakeRunner{hasKey: true, err: errors.New("boom")}
	trigger := NewTrigger(db, runner, time.UTC)

	_, err := trigger.RunSchedule(context.Background(), "bayut-daily", models.SyncTriggerManual)
	require.Error(t, err)

	schedule, err := trigger.LoadSchedule("bayut-daily")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, schedule.LastRunStatus)
	assert.Equal(t, "boom", schedule.LastError)
}

func TestEnsureDefaultSchedule(t *testing.T) {
	db := newTestDB(t)
	cfg := config.DefaultConfig()

	schedule, err := EnsureDefaultSchedule(db, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Sync.ScheduleName, schedule.Name)
	assert.Equal(t, cfg.Listings.DefaultAreas, schedule.AreaList())

	// operator edits survive restarts
	require.NoError(t, db.Model(schedule).Update("cron_spec", "30 4 * * *").Error)
	again, err := EnsureDefaultSchedule(db, cfg)
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * *", again.CronSpec)

	var count int64
	require.NoError(t, db.Model(&models.SyncSchedule{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestScheduler_RunNowSkipsWhileRunning(t *testing.T) {
	s := NewScheduler(time.UTC)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("payouts", "0 6 1 * *", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "payouts") }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), "payouts"), ErrJobRunning)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Running)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Jobs()[0].Running)
}

func TestScheduler_RegisterAndUnknownJob(t *testing.T) {
	s := NewScheduler(time.UTC)

	assert.Error(t, s.Register("bad", "every now and then", func(ctx context.Context) error { return nil }))
	require.NoError(t, s.Register("sync", "@hourly", func(ctx context.Context) error { return nil }))
	assert.Error(t, s.Register("sync", "@daily", func(ctx context.Context) error { return nil }))

	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownJob)
	assert.NoError(t, s.RunNow(context.Background(), "sync"))
}
