package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ArbPull/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is a scheduled unit of work. Its context is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs with seconds precision. Runs of
// one job never overlap: a firing that lands while the job is still going
// delays the next run until the current one returns, and any number of such
// firings collapse into that single run. A panicking job is recovered and
// logged.
type Scheduler struct {
	cron   *cron.Cron
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*entry
}

type entry struct {
	job Job

	mu      sync.Mutex
	running bool
	missed  bool
}

// enter claims the entry. A busy entry records the missed firing instead.
func (e *entry) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.missed = true
		return false
	}
	e.running = true
	return true
}

// again reports whether a firing was missed during the last run and keeps
// the entry claimed if so. Otherwise the entry is released.
func (e *entry) again(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.missed && ctx.Err() == nil {
		e.missed = false
		return true
	}
	e.running = false
	e.missed = false
	return false
}

func (e *entry) release() {
	e.mu.Lock()
	e.running = false
	e.missed = false
	e.mu.Unlock()
}

func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	cl := logger.NewCronLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Every returns the spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Add registers job under name. Errors returned by the job are logged.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	e := &entry{job: job}
	if _, err := s.cron.AddFunc(spec, func() { s.fire(name, e) }); err != nil {
		return fmt.Errorf("register %s (%s): %w", name, spec, err)
	}
	s.jobs[name] = e
	return nil
}

// RunNow runs a registered job synchronously, outside the schedule. If the
// job is already running, RunNow returns nil at once and the job runs again
// as soon as the current run returns.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	if !e.enter() {
		s.log.Debug("job delayed, still running", logger.String("job", name))
		return nil
	}
	defer releaseOnPanic(e)

	err := e.job(s.ctx)
	for e.again(s.ctx) {
		s.run(name, e.job)
	}
	return err
}

func (s *Scheduler) fire(name string, e *entry) {
	if !e.enter() {
		s.log.Debug("job delayed, still running", logger.String("job", name))
		return
	}
	defer releaseOnPanic(e)

	for {
		s.run(name, e.job)
		if !e.again(s.ctx) {
			return
		}
	}
}

// releaseOnPanic frees the entry and lets the panic continue to cron.Recover.
func releaseOnPanic(e *entry) {
	if r := recover(); r != nil {
		e.release()
		panic(r)
	}
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.log.Warn("scheduled job failed",
			logger.String("job", name),
			logger.Duration("duration_ms", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	s.log.Debug("scheduled job done",
		logger.String("job", name),
		logger.Duration("duration_ms", time.Since(start)),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.cron.Entries())))
}

// Stop halts the schedule, cancels running jobs, and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
