// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

// BatchEngine runs several scan requests concurrently, each on its own session,
// and joins on all of them.
type BatchEngine struct {
	cfg      config.Interface
	executor schemas.ScanExecutor
	logger   *zap.Logger
}

var _ schemas.BatchEngine = (*BatchEngine)(nil)

// New creates a BatchEngine.
func New(cfg config.Interface, executor schemas.ScanExecutor, logger *zap.Logger) (*BatchEngine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &BatchEngine{
		cfg:      cfg,
		executor: executor,
		logger:   logger.With(zap.String("component", "batch_engine")),
	}, nil
}

// RunBatch runs every id and returns one outcome per id, in input order, once all
// runs have finished. A failing or panicking run never cancels its siblings.
func (e *BatchEngine) RunBatch(ctx context.Context, ids []string, urls []string, device string) []schemas.RunOutcome {
	outcomes := make([]schemas.RunOutcome, len(ids))
	if len(ids) == 0 {
		return outcomes
	}

	concurrency := e.cfg.Engine().WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	e.logger.Info("Starting batch run", zap.Int("scans", len(ids)), zap.Int("concurrency", concurrency))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = e.runOne(ctx, id, urls, device)
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, o := range outcomes {
		if o.Status == schemas.RunCompleted {
			completed++
		}
	}
	e.logger.Info("Batch run finished", zap.Int("scans", len(ids)), zap.Int("completed", completed))
	return outcomes
}

func (e *BatchEngine) runOne(ctx context.Context, id string, urls []string, device string) (outcome schemas.RunOutcome) {
	log := e.logger.With(zap.String("scan_request_id", id))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Scan run panicked",
				zap.Any("panicValue", r),
				zap.String("stack", string(debug.Stack())),
			)
			outcome = schemas.RunOutcome{
				ScanRequestID: id,
				Status:        schemas.RunFailed,
				Message:       fmt.Sprintf("Scan request with ID %s failed: panic: %v", id, r),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return schemas.RunOutcome{
			ScanRequestID: id,
			Status:        schemas.RunFailed,
			Message:       fmt.Sprintf("Scan request with ID %s failed: %v", id, err),
		}
	}

	outcome, err := e.executor.Run(ctx, id, urls, device)
	if err != nil {
		log.Error("Scan run failed", zap.Error(err))
		if outcome.Status == "" {
			outcome.Status = schemas.RunFailed
		}
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("Scan request with ID %s failed: %v", id, err)
		}
	}
	outcome.ScanRequestID = id
	return outcome
}
