// Package scheduler triggers ingestion runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/ingest"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context) ingest.Report
}

// Config controls when runs fire.
type Config struct {
	// Schedule is a standard five-field cron expression or descriptor such as
	// "@daily". Empty disables periodic runs.
	Schedule   string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler fires Runner.Run on its schedule. A tick that lands while a run is
// active is turned away by the runner's lock and only logged.
type Scheduler struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
	cron   *cron.Cron
	entry  cron.EntryID

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the schedule and builds a stopped Scheduler.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		ctx:    context.Background(),
		cancel: func() {},
	}
	if cfg.Schedule != "" {
		id, err := s.cron.AddFunc(cfg.Schedule, s.trigger)
		if err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
		}
		s.entry = id
	}
	return s, nil
}

// Start begins firing runs. Runs use a context derived from ctx that is
// canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("time_zone", s.cfg.Location.String()),
		zap.Time("next", s.Next()),
	)
	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger()
		}()
	}
}

// Stop halts the schedule, cancels an active run, and waits for it to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled run: %w", ctx.Err())
	}
}

// Next returns the next scheduled fire time, or zero when none is scheduled
// or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report := s.runner.Run(ctx)
	if report.Rejected {
		s.logger.Info("scheduled run skipped, another run is in progress")
		return
	}
	s.logger.Info("scheduled run finished",
		zap.String("run_id", report.RunID),
		zap.Int("stored", report.Stored),
		zap.Bool("canceled", report.Canceled),
	)
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
