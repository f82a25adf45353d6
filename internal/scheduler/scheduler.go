package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job is already running")
)

// JobFunc is one execution of a scheduled job
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	spec    string
	fn      JobFunc
	entryID cron.EntryID
	running sync.Mutex
}

// JobStatus describes a registered job
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Running bool      `json:"running"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev"`
}

// Scheduler handles scheduled jobs
type Scheduler struct {
	cron      *cron.Cron
	jobs      map[string]*job
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	log       *logrus.Entry
}

// NewScheduler creates a new scheduler evaluating cron expressions in loc
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log := logging.ForComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Register adds a job under name with a cron expression
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{name: name, spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.execute(s.ctx, j); err != nil {
			if errors.Is(err, ErrJobRunning) {
				s.log.WithField("job", name).Warn("Skipping tick: previous run still in progress")
				return
			}
			s.log.WithError(err).WithField("job", name).Error("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule for job %s: %w", name, err)
	}
	j.entryID = id
	s.jobs[name] = j

	s.log.WithFields(logrus.Fields{"job": name, "cron": spec}).Info("Job registered")
	return nil
}

// execute runs a job unless an execution of the same job is still in progress
func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if !j.running.TryLock() {
		return ErrJobRunning
	}
	defer j.running.Unlock()

	start := time.Now()
	log := s.log.WithField("job", j.name)
	log.Info("Job started")

	err := j.fn(ctx)
	if err != nil {
		return err
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Job finished")
	return nil
}

// RunNow executes a registered job immediately (for manual triggers)
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	s.log.WithField("job", name).Info("Manual trigger")
	return s.execute(ctx, j)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.cron.Start()
	s.isRunning = true
	s.log.Infof("Scheduler started with %d jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for running jobs to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Jobs lists registered jobs with their next activation
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entryID)
		running := !j.running.TryLock()
		if !running {
			j.running.Unlock()
		}
		statuses = append(statuses, JobStatus{
			Name:    j.name,
			Spec:    j.spec,
			Running: running,
			Next:    entry.Next,
			Prev:    entry.Prev,
		})
	}
	sort.Slice(statuses, func(i, k int) bool { return statuses[i].Name < statuses[k].Name })
	return statuses
}
