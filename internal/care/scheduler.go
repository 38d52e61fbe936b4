package care

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultHydrateTimeout bounds one scheduled hydration.
const defaultHydrateTimeout = 30 * time.Second

// Scheduler runs non-forced HydrateScope on a cron schedule.
//
// Runs that would overlap are skipped twice over: by the cron chain and
// by the scope's own in-flight guard.
type Scheduler struct {
	scope   *Scope
	expr    string
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler validates expr and creates a stopped scheduler.
//
// expr accepts standard five-field cron expressions and descriptors such
// as "@every 30s" or "@hourly".
func NewScheduler(scope *Scope, expr string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}
	return &Scheduler{
		scope:   scope,
		expr:    expr,
		timeout: defaultHydrateTimeout,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetTimeout bounds each scheduled hydration. Zero or less keeps the default.
func (s *Scheduler) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Start begins scheduled hydration. Runs stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(s.expr, func() { s.run(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, s.expr, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.Info("scope scheduler started", "schedule", s.expr)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !s.scope.HydrateScope(ctx, false) {
		s.logger.Debug("scheduled hydration skipped, previous still running")
	}
}

// Stop halts scheduling and waits for a running hydration to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scope scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
