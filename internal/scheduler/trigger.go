// internal/scheduler/trigger.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/internal/config"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Trigger invokes a sweep on a cron schedule. Overlapping sweeps are skipped.
type Trigger struct {
	cfg       config.SchedulerConfig
	scheduler *Scheduler
	logger    *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewTrigger creates a trigger for the scheduler.
func NewTrigger(cfg config.SchedulerConfig, scheduler *Scheduler, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{cfg: cfg, scheduler: scheduler, logger: logger.Named("trigger")}
}

// Start registers the sweep and starts the cron loop. Sweeps run with ctx, so
// canceling it aborts an in-flight sweep; call Stop to end the loop.
func (t *Trigger) Start(ctx context.Context) error {
	if !t.cfg.Enabled {
		t.logger.Info("Scheduler disabled, sweeps will not run")
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return errors.New("trigger already started")
	}

	clog := cronLogger{sugar: t.logger.Sugar()}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(t.cfg.Cron, func() { t.runSweep(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", t.cfg.Cron, err)
	}
	c.Start()
	t.cron = c
	t.logger.Info("Scheduler started", zap.String("cron", t.cfg.Cron))
	return nil
}

func (t *Trigger) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := t.scheduler.Sweep(ctx); err != nil {
		t.logger.Error("Scheduled sweep failed", zap.Error(err))
	}
}

// Stop halts the cron loop and waits for a running sweep to return or ctx to end.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		t.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
