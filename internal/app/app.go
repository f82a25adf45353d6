// Package app wires configuration into the services shared by the API server and the job runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cache"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cleanup"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/commission"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/database"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/handlers"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ingest"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/listings"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/notify"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payments"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/payout"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ratelimit"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/scheduler"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/search"
)

const (
	maxRetries     = 5
	initialBackoff = 500 * time.Millisecond

	cleanupCronSpec    = "30 3 * * *"
	cachePurgeCronSpec = "@hourly"
)

// Job names accepted by RunJob
const (
	JobSync        = "sync"
	JobCommissions = "commissions"
	JobPayouts     = "payouts"
	JobCleanup     = "cleanup"
	JobCachePurge  = "cache-purge"
)

// ErrUnknownJob is returned by RunJob for names it does not know
var ErrUnknownJob = errors.New("unknown job")

// App holds every wired service
type App struct {
	Config      *config.Config
	DB          *database.GormDB
	Search      *search.SearchClient
	Listings    *listings.Client
	Coordinator *ingest.Coordinator
	Trigger     *scheduler.Trigger
	Gateway     payments.Gateway
	Notifier    *notify.Notifier
	Commissions *commission.Job
	Payouts     *payout.Job
	Cleanup     *cleanup.Service
	CacheStore  *cache.DBStore
	Cache       *cache.Cache

	log *logrus.Entry
}

// NewApp connects to the database and builds the services
func NewApp(cfg *config.Config) (*App, error) {
	log := logging.ForComponent("app")

	var (
		gdb     *database.GormDB
		err     error
		backoff = initialBackoff
	)
	for i := 1; i <= maxRetries; i++ {
		gdb, err = database.Open(cfg.Database)
		if err == nil {
			log.Infof("Connected to %s database on attempt %d", dbType(cfg), i)
			break
		}
		log.WithError(err).Warnf("Failed DB connect on attempt %d/%d. Retrying in %v...", i, maxRetries, backoff)
		if i == maxRetries {
			return nil, fmt.Errorf("unable to connect after %d attempts: %w", maxRetries, err)
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	if err := gdb.InitSchema(); err != nil {
		gdb.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &App{Config: cfg, DB: gdb, log: log}

	var indexer search.Indexer
	if cfg.Search.Enabled {
		ms := cfg.Search.Meilisearch
		a.Search = search.NewSearchClient(ms.Host, ms.APIKey, ms.Index)
		if err := a.Search.InitIndex(); err != nil {
			log.WithError(err).Warn("Failed to initialize search index")
		}
		indexer = a.Search
	}

	a.Listings = listings.NewClientFromConfig(cfg.Listings)
	if !a.Listings.HasAPIKey() {
		log.Warn("Listings API key is not configured; syncs will be skipped")
	}
	a.Coordinator = ingest.NewCoordinator(a.Listings, gdb, indexer, ingest.OptionsFromConfig(cfg))
	a.Trigger = scheduler.NewTrigger(gdb.DB(), a.Coordinator, cfg.Location())
	if _, err := scheduler.EnsureDefaultSchedule(gdb.DB(), cfg); err != nil {
		log.WithError(err).Warn("Failed to seed default sync schedule")
	}

	a.Gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
	a.Notifier = notify.NewNotifier(gdb.DB(), notify.NewMailer(cfg.Notifications), cfg.Notifications.DashboardURL)
	a.Commissions = commission.NewJob(gdb.DB(), a.Gateway, cfg.Commissions)
	a.Payouts = payout.NewJob(gdb.DB(), a.Gateway, a.Notifier, cfg.Payouts)
	a.Cleanup = cleanup.NewService(gdb, indexer, cfg.Listings.Source, cfg.Cleanup)

	a.CacheStore = cache.NewDBStore(gdb.DB())
	a.Cache, err = cache.NewFromConfig(a.CacheStore, cfg.Cache)
	if err != nil {
		gdb.Close()
		return nil, err
	}

	return a, nil
}

func dbType(cfg *config.Config) string {
	if cfg.Database.Type == "" {
		return "postgres"
	}
	return cfg.Database.Type
}

// Close releases the database connection
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
			return
		}
		a.log.Info("Database connection closed")
	}
}

// RunJob executes one job by name
func (a *App) RunJob(ctx context.Context, name string) error {
	switch name {
	case JobSync:
		outcome, err := a.Trigger.RunSchedule(ctx, a.Config.Sync.ScheduleName, "")
		if err != nil {
			return err
		}
		if outcome.Skipped {
			a.log.WithField("reason", outcome.Reason).Info("Scheduled sync skipped")
		}
		return nil
	case JobCommissions:
		_, err := a.Commissions.Run(ctx)
		return err
	case JobPayouts:
		_, err := a.Payouts.Run(ctx)
		return err
	case JobCleanup:
		_, err := a.Cleanup.Run(ctx, a.Cleanup.DefaultOptions())
		return err
	case JobCachePurge:
		n, err := a.CacheStore.PurgeExpired(ctx)
		if err == nil && n > 0 {
			a.log.WithField("count", n).Debug("Purged expired cache entries")
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// NewScheduler registers the enabled jobs on a cron scheduler
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(a.Config.Location())

	type entry struct {
		name    string
		spec    string
		enabled bool
	}
	syncSpec := a.Config.Sync.CronSpec
	if s, err := a.Trigger.LoadSchedule(a.Config.Sync.ScheduleName); err == nil && s.CronSpec != "" {
		syncSpec = s.CronSpec
	}
	entries := []entry{
		// the schedule row decides at run time whether the sync actually happens
		{JobSync, syncSpec, true},
		{JobCommissions, a.Config.Commissions.CronSpec, a.Config.Commissions.Enabled},
		{JobPayouts, a.Config.Payouts.CronSpec, a.Config.Payouts.Enabled},
		{JobCleanup, cleanupCronSpec, true},
		{JobCachePurge, cachePurgeCronSpec, true},
	}

	for _, e := range entries {
		if !e.enabled {
			a.log.WithField("job", e.name).Info("Job disabled")
			continue
		}
		if err := sched.Register(e.name, e.spec, func(ctx context.Context) error {
			return a.RunJob(ctx, e.name)
		}); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.name, err)
		}
	}
	return sched, nil
}

// Router builds the HTTP router. sched may be nil.
func (a *App) Router(sched *scheduler.Scheduler) *gin.Engine {
	var searcher handlers.Searcher
	if a.Search != nil {
		searcher = a.Search
	}

	return handlers.NewRouter(handlers.Router{
		Public: handlers.NewPublicHandler(searcher, a.Listings.Breaker(), a.Config.Location()),
		Jobs: handlers.NewJobsHandler(
			a.Coordinator,
			a.Trigger,
			a.Commissions,
			a.Payouts,
			a.Config.Listings.DefaultAreas,
			a.Config.Sync.ScheduleName,
		),
		Admin:          handlers.NewAdminHandler(a.DB.DB(), a.Coordinator, sched, a.Cleanup, a.Cache, a.Notifier),
		RateLimiter:    ratelimit.NewFromConfig(a.Cache, a.Config.RateLimit),
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	})
}
