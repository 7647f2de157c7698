// Package schedule runs the refresh and retention sweep on cron expressions
// inside the API server process.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	RefreshAll(ctx context.Context) (legislation.RefreshResult, error)
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config holds standard 5-field cron expressions. An empty expression
// disables that job.
type Config struct {
	RefreshSpec string
	SweepSpec   string
	Retention   time.Duration
	Location    *time.Location
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron      *cron.Cron
	jobs      Jobs
	retention time.Duration
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New parses the expressions and registers the jobs without starting them.
func New(cfg Config, jobs Jobs, logger *zap.Logger) (*Scheduler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("schedule: jobs are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("schedule")
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	cronLog := cronLogger{logger: logger.Sugar()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      c,
		jobs:      jobs,
		retention: cfg.Retention,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.RefreshSpec != "" {
		if _, err := c.AddFunc(cfg.RefreshSpec, func() { s.RunRefresh(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule refresh %q: %w", cfg.RefreshSpec, err)
		}
	}
	if cfg.SweepSpec != "" {
		if cfg.Retention <= 0 {
			cancel()
			return nil, fmt.Errorf("schedule sweep: retention must be positive")
		}
		if _, err := c.AddFunc(cfg.SweepSpec, func() { s.RunSweep(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule sweep %q: %w", cfg.SweepSpec, err)
		}
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("job scheduled", zap.Int("entry_id", int(e.ID)), zap.Time("next_run", e.Next))
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// RunRefresh performs one full refresh.
func (s *Scheduler) RunRefresh(ctx context.Context) {
	result, err := s.jobs.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("scheduled refresh failed", zap.String("run_id", result.RunID), zap.Error(err))
		return
	}
	s.logger.Info("scheduled refresh finished",
		zap.String("run_id", result.RunID),
		zap.Int("national", result.National),
		zap.Int("admin", result.Admin),
	)
}

// RunSweep performs one retention sweep.
func (s *Scheduler) RunSweep(ctx context.Context) {
	n, err := s.jobs.Sweep(ctx, s.retention)
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled sweep finished", zap.Int("count", n))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
