// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// Scheduler defers scan runs to a later time and runs them once they are due.
type Scheduler struct {
	store    schemas.Store
	executor schemas.ScanExecutor
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Scheduler.
func New(store schemas.Store, executor schemas.ScanExecutor, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// ScheduledMessage is the outcome text of a successful schedule upsert.
func ScheduledMessage(id string) string {
	return fmt.Sprintf("Scan request with ID %s scheduled successfully.", id)
}

// ParseRunAt parses an RFC 3339 run time.
func ParseRunAt(raw string) (time.Time, error) {
	runAt, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: scheduledTime must be an RFC 3339 timestamp: %v", schemas.ErrValidation, err)
	}
	return runAt.UTC(), nil
}

// Schedule sets the run time of every id. Each id is upserted independently and
// reported in input order; an unparseable time rejects the whole batch.
func (s *Scheduler) Schedule(ctx context.Context, ids []string, rawRunAt string) ([]schemas.ScheduleOutcome, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one scanRequestId is required", schemas.ErrValidation)
	}
	runAt, err := ParseRunAt(rawRunAt)
	if err != nil {
		return nil, err
	}

	outcomes := make([]schemas.ScheduleOutcome, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = s.scheduleOne(ctx, id, runAt)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

func (s *Scheduler) scheduleOne(ctx context.Context, id string, runAt time.Time) schemas.ScheduleOutcome {
	err := s.store.UpsertSchedule(ctx, schemas.ScheduleEntry{ScanRequestID: id, RunAt: runAt})
	if err != nil {
		s.logger.Error("Error in scheduling scan", zap.String("scan_request_id", id), zap.Error(err))
		return schemas.ScheduleOutcome{
			ScanRequestID: id,
			Message:       fmt.Sprintf("Scan request with ID %s could not be scheduled.", id),
			Error:         err.Error(),
		}
	}
	s.logger.Info("Scan scheduled", zap.String("scan_request_id", id), zap.Time("run_at", runAt))
	return schemas.ScheduleOutcome{ScanRequestID: id, Message: ScheduledMessage(id)}
}

// Sweep runs every scan whose scheduled time has passed. All due entries are
// detached before the first run starts so a slow run cannot make the next sweep
// pick the same scans again. Runs are sequential and isolated from each other.
func (s *Scheduler) Sweep(ctx context.Context) (schemas.SweepReport, error) {
	due, err := s.store.DueSchedules(ctx, s.now().UTC())
	if err != nil {
		return schemas.SweepReport{}, fmt.Errorf("failed to query due schedules: %w", err)
	}

	report := schemas.SweepReport{Due: len(due)}
	if len(due) == 0 {
		s.logger.Debug("No scheduled scans due")
		return report, nil
	}
	s.logger.Info("Running scheduled scans", zap.Int("due", len(due)))

	for _, scan := range due {
		if err := s.store.DetachSchedule(ctx, scan.ScanRequestID); err != nil {
			s.logger.Error("Error updating info of scheduled scan",
				zap.String("scan_request_id", scan.ScanRequestID), zap.Error(err))
			continue
		}
		report.Detached++
	}

	for _, scan := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.executor.Run(ctx, scan.ScanRequestID, scan.URLs, scan.Device)
		if outcome.ScanRequestID == "" {
			outcome.ScanRequestID = scan.ScanRequestID
		}
		if err != nil || outcome.Status != schemas.RunCompleted {
			report.Failed++
			if outcome.Status == "" {
				outcome.Status = schemas.RunFailed
			}
			if outcome.Message == "" && err != nil {
				outcome.Message = err.Error()
			}
			s.logger.Error("Error running scheduled scan",
				zap.String("scan_request_id", scan.ScanRequestID),
				zap.String("status", string(outcome.Status)),
				zap.Error(err))
		} else {
			report.Completed++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	s.logger.Info("Scheduled scan sweep finished",
		zap.Int("due", report.Due),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed))
	return report, nil
}
