// Package scheduler drives the cron-shaped job schedule for the cycle
// engine: daily match selection, daily cycle creation, hourly resolution
// checks, and weekly cleanup, each guarded by a named singleflight key so
// a slow run never overlaps its own next tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/lifecycle"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const (
	lockNewCycle    = "newCycle"
	lockResolve     = "resolve"
	lockMatchSelect = "matchSelect"
	lockCleanup     = "cleanup"
)

// Config carries the cron expressions and retention knobs.
type Config struct {
	MatchSelectSpec string // default "1 0 * * *"        (00:01 daily)
	NewCycleSpec    string // default "5 0 * * *"        (00:05 daily)
	ResolveSpec     string // default "0 22-23,0-6 * * *" (top of each hour, 22:00-06:00 UTC)
	CleanupSpec     string // default "0 3 * * 0"        (Sunday 03:00)
	CycleRetention  int    // days, default 30
	SelectRetention int    // days, default 7
}

func DefaultConfig() Config {
	return Config{
		MatchSelectSpec: "1 0 * * *",
		NewCycleSpec:    "5 0 * * *",
		ResolveSpec:     "0 22-23,0-6 * * *",
		CleanupSpec:     "0 3 * * 0",
		CycleRetention:  30,
		SelectRetention: 7,
	}
}

// Scheduler owns the cron instance and the per-job singleflight group that
// keeps a job from overlapping itself.
type Scheduler struct {
	cron    *cron.Cron
	store   *cyclestore.Store
	cycles  *lifecycle.Manager
	cfg     Config
	entryID map[string]cron.EntryID

	sf singleflight.Group

	runningMu sync.Mutex
	running   bool
}

func New(store *cyclestore.Store, cycles *lifecycle.Manager, cfg Config) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		store:   store,
		cycles:  cycles,
		cfg:     cfg,
		entryID: make(map[string]cron.EntryID),
	}
}

// Start registers and runs all four jobs. It is not idempotent; call once.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{lockMatchSelect, s.cfg.MatchSelectSpec, func() { s.runGuarded(lockMatchSelect, s.runMatchSelect) }},
		{lockNewCycle, s.cfg.NewCycleSpec, func() { s.runGuarded(lockNewCycle, s.runNewCycle) }},
		{lockResolve, s.cfg.ResolveSpec, func() { s.runGuarded(lockResolve, s.runResolve) }},
		{lockCleanup, s.cfg.CleanupSpec, func() { s.runGuarded(lockCleanup, s.runCleanup) }},
	}

	for _, j := range jobs {
		id, err := s.cron.AddFunc(j.spec, j.fn)
		if err != nil {
			return fmt.Errorf("scheduler: schedule %s (%q): %w", j.name, j.spec, err)
		}
		s.entryID[j.name] = id
	}

	s.cron.Start()
	s.runningMu.Lock()
	s.running = true
	s.runningMu.Unlock()
	telemetry.Infof("scheduler: started with %d jobs", len(jobs))
	return nil
}

// Stop waits for any in-flight job run to finish, then halts the cron loop.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.runningMu.Lock()
	s.running = false
	s.runningMu.Unlock()
	telemetry.Infof("scheduler: stopped")
}

// runGuarded coalesces concurrent calls under the same job name into a
// single execution via singleflight: a tick that lands while the previous
// one is still running joins it instead of starting a second run, so a
// job can never overlap itself.
func (s *Scheduler) runGuarded(name string, fn func(ctx context.Context)) {
	_, _, shared := s.sf.Do(name, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		fn(ctx)
		return nil, nil
	})
	if shared {
		telemetry.Warnf("scheduler: %s overlapped a running instance, coalesced", name)
	}
}

// runMatchSelect records today's daily_selections marker once per UTC day.
// It does not run the selector or persist any matches; the matches of a
// day are chosen when CreateDailyCycle runs in the newCycle job.
func (s *Scheduler) runMatchSelect(ctx context.Context) {
	today := time.Now().UTC()
	already, err := s.store.HasDailySelection(ctx, today)
	if err != nil {
		telemetry.Errorf("scheduler: matchSelect: check daily selection: %v", err)
		return
	}
	if already {
		telemetry.Infof("scheduler: matchSelect: already recorded for %s, skipping", today.Format("2006-01-02"))
		return
	}
	if err := s.store.RecordDailySelection(ctx, today); err != nil {
		telemetry.Errorf("scheduler: matchSelect: record daily selection: %v", err)
	}
}

func (s *Scheduler) runNewCycle(ctx context.Context) {
	today := time.Now().UTC()
	cycle, err := s.cycles.CreateDailyCycle(ctx, today)
	if err != nil {
		telemetry.Errorf("scheduler: newCycle: create daily cycle failed: %v", err)
		return
	}
	telemetry.Infof("scheduler: newCycle: cycle %d ready for %s", cycle.ID, today.Format("2006-01-02"))
}

func (s *Scheduler) runResolve(ctx context.Context) {
	if err := s.cycles.CheckResolutions(ctx, time.Now().UTC()); err != nil {
		telemetry.Errorf("scheduler: resolve: check resolutions failed: %v", err)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if err := s.store.PurgeOlderThan(ctx, s.cfg.CycleRetention, s.cfg.SelectRetention); err != nil {
		telemetry.Errorf("scheduler: cleanup: purge failed: %v", err)
	}
}

// --- manual control interface ---

// TriggerNewCycle runs the new-cycle job immediately, bypassing the cron
// schedule, still honoring the named lock.
func (s *Scheduler) TriggerNewCycle(ctx context.Context) {
	s.runGuarded(lockNewCycle, s.runNewCycle)
}

func (s *Scheduler) TriggerResolution(ctx context.Context) {
	s.runGuarded(lockResolve, s.runResolve)
}

func (s *Scheduler) TriggerMatchSelection(ctx context.Context) {
	s.runGuarded(lockMatchSelect, s.runMatchSelect)
}

// Status reports whether the scheduler is running with all four jobs
// scheduled.
type Status struct {
	Running    bool
	JobsActive int
	NextRuns   map[string]time.Time
}

func (s *Scheduler) Status() Status {
	s.runningMu.Lock()
	running := s.running
	s.runningMu.Unlock()

	next := make(map[string]time.Time, len(s.entryID))
	for name, id := range s.entryID {
		entry := s.cron.Entry(id)
		next[name] = entry.Next
	}

	return Status{
		Running:    running && len(s.entryID) == 4,
		JobsActive: len(s.entryID),
		NextRuns:   next,
	}
}

// Healthy reports whether the scheduler is running with every job
// scheduled.
func (st Status) Healthy() bool {
	return st.Running && st.JobsActive == 4
}
