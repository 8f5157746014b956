// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/score"
)

// closeTimeout bounds the deferred session close, which runs on a context
// detached from the run so a canceled run still releases its browser.
const closeTimeout = 15 * time.Second

// DeviceResolver maps a device name to an emulation profile.
type DeviceResolver interface {
	Resolve(ctx context.Context, name string) (schemas.DeviceProfile, error)
}

// Executor runs one scan request end to end on a session it owns.
type Executor struct {
	store    schemas.Store
	sessions schemas.SessionFactory
	steps    schemas.StepRunner
	devices  DeviceResolver
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	now      func() time.Time
}

var _ schemas.ScanExecutor = (*Executor)(nil)

// New creates an Executor.
func New(
	store schemas.Store,
	sessions schemas.SessionFactory,
	steps schemas.StepRunner,
	devices DeviceResolver,
	cfg config.ExecutorConfig,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:    store,
		sessions: sessions,
		steps:    steps,
		devices:  devices,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		now:      time.Now,
	}
}

// CompletedMessage is the outcome text of a successful run.
func CompletedMessage(id string) string {
	return fmt.Sprintf("Scan request with ID %s completed successfully.", id)
}

// StepsFailedMessage is the outcome text of a run whose pre-scan steps failed.
func StepsFailedMessage(id string) string {
	return fmt.Sprintf("Scan Steps issue with Scan request with ID %s.", id)
}

func failed(id string, err error) (schemas.RunOutcome, error) {
	return schemas.RunOutcome{
		ScanRequestID: id,
		Status:        schemas.RunFailed,
		Message:       fmt.Sprintf("Scan request with ID %s failed: %v", id, err),
	}, err
}

// Run executes the scan. urls and device override the stored URL set and device
// when non-empty. A step failure is reported through the outcome with a nil error
// and leaves the request untouched; every other failure is returned.
func (e *Executor) Run(ctx context.Context, scanRequestID string, urls []string, device string) (schemas.RunOutcome, error) {
	log := e.logger.With(zap.String("scan_request_id", scanRequestID))

	req, err := e.store.GetScanRequest(ctx, scanRequestID)
	if err != nil {
		return failed(scanRequestID, fmt.Errorf("failed to load scan request: %w", err))
	}
	if len(urls) == 0 {
		urls = req.URLs
	}
	if device == "" {
		device = req.Device
	}
	profile, err := e.devices.Resolve(ctx, device)
	if err != nil {
		return failed(scanRequestID, fmt.Errorf("failed to resolve device: %w", err))
	}

	session, err := e.sessions.Open(ctx)
	if err != nil {
		return failed(scanRequestID, fmt.Errorf("failed to open browsing session: %w", err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			log.Warn("Failed to close browsing session", zap.Error(err))
		}
	}()

	log.Info("Starting scan run",
		zap.String("session_id", session.ID()),
		zap.Int("urls", len(urls)),
		zap.String("device", profile.Name),
		zap.Strings("guidance", req.Guidance),
	)

	if len(req.Steps) > 0 {
		if err := e.runSteps(ctx, session, req, profile); err != nil {
			if ctx.Err() != nil {
				return failed(scanRequestID, ctx.Err())
			}
			log.Error("Pre-scan steps failed", zap.Error(err))
			return schemas.RunOutcome{
				ScanRequestID: scanRequestID,
				Status:        schemas.RunStepsFailed,
				Message:       StepsFailedMessage(scanRequestID) + " " + err.Error(),
			}, nil
		}
	}

	var (
		tally   score.Tally
		outcome = schemas.RunOutcome{ScanRequestID: scanRequestID}
	)
	for _, target := range urls {
		if err := ctx.Err(); err != nil {
			return failed(scanRequestID, err)
		}

		res, err := e.scanURL(ctx, session, req, profile, target)
		if errors.Is(err, errSkipped) {
			outcome.Skipped++
			continue
		}
		if err != nil {
			return failed(scanRequestID, err)
		}

		tally.Add(res.Passes, res.Violations)
		if _, err := e.store.SaveResult(ctx, res); err != nil {
			return failed(scanRequestID, fmt.Errorf("failed to save result for %s: %w", target, err))
		}
		outcome.Processed++
		log.Debug("URL analysed", zap.String("url", target), zap.Float64("score", res.Score))
	}

	total := tally.Score()
	if err := e.store.CompleteScanRequest(ctx, scanRequestID, total, e.now()); err != nil {
		return failed(scanRequestID, fmt.Errorf("failed to complete scan request: %w", err))
	}

	outcome.Status = schemas.RunCompleted
	outcome.Message = CompletedMessage(scanRequestID)
	outcome.Score = &total
	log.Info("Scan run completed",
		zap.Float64("score", total),
		zap.Int("processed", outcome.Processed),
		zap.Int("skipped", outcome.Skipped),
	)
	return outcome, nil
}

// runSteps loads the seed page under the run's device and replays the steps once.
func (e *Executor) runSteps(ctx context.Context, session schemas.BrowsingSession, req *schemas.ScanRequest, profile schemas.DeviceProfile) error {
	if err := session.Emulate(ctx, profile); err != nil {
		return fmt.Errorf("failed to emulate device %s: %w", profile.Name, err)
	}
	if err := session.Navigate(ctx, req.URL, schemas.WaitDOMContentLoaded); err != nil {
		return fmt.Errorf("failed to load %s before steps: %w", req.URL, err)
	}
	return e.steps.Run(ctx, session, req.Steps)
}

var errSkipped = errors.New("url skipped")

// scanURL loads one page, lets it settle and analyses it. It returns errSkipped
// when the page could not be loaded at all.
func (e *Executor) scanURL(
	ctx context.Context,
	session schemas.BrowsingSession,
	req *schemas.ScanRequest,
	profile schemas.DeviceProfile,
	target string,
) (*schemas.PerUrlResult, error) {
	log := e.logger.With(zap.String("scan_request_id", req.ID), zap.String("url", target))

	if err := session.Emulate(ctx, profile); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Device emulation failed, skipping URL", zap.Error(err))
		return nil, errSkipped
	}
	if err := session.Navigate(ctx, target, schemas.WaitDOMContentLoaded); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Navigation failed, skipping URL", zap.Error(err))
		return nil, errSkipped
	}

	settleCtx := ctx
	if e.cfg.SettleTimeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, e.cfg.SettleTimeout)
		defer cancel()
	}
	if err := session.WaitForNavigation(settleCtx, schemas.WaitNetworkIdle); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Info("Page did not settle, analysing anyway", zap.Error(err))
	}

	analysis, err := session.RunAnalysis(ctx, req.Guidance)
	if err != nil {
		return nil, fmt.Errorf("analysis of %s failed: %w", target, err)
	}

	env := analysis.TestEnvironment
	if env.Device == "" {
		env.Device = profile.Name
	}
	ts := analysis.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	return &schemas.PerUrlResult{
		ScanRequestID:   req.ID,
		URL:             target,
		Score:           score.Calculate(len(analysis.Passes), len(analysis.Violations)),
		Timestamp:       ts.UTC(),
		TestEngine:      analysis.TestEngine,
		TestEnvironment: env,
		Violations:      analysis.Violations,
		Passes:          analysis.Passes,
		Incomplete:      analysis.Incomplete,
		Inapplicable:    analysis.Inapplicable,
	}, nil
}
