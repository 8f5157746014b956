// File: internal/orchestrator/orchestrator.go
// Description: The operation surface shared by the CLI and the HTTP API. It is
// injected with fully configured components via interfaces.

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/score"
)

// sessionCloseTimeout bounds closing the discovery session.
const sessionCloseTimeout = 15 * time.Second

// Scheduler defers runs and sweeps the due ones.
type Scheduler interface {
	Schedule(ctx context.Context, ids []string, runAt string) ([]schemas.ScheduleOutcome, error)
	Sweep(ctx context.Context) (schemas.SweepReport, error)
}

// DeviceCatalog lists the known emulation profiles.
type DeviceCatalog interface {
	List(ctx context.Context) ([]schemas.DeviceProfile, error)
}

// Deps groups the orchestrator's collaborators.
type Deps struct {
	Config    config.Interface
	Logger    *zap.Logger
	Store     schemas.Store
	Sessions  schemas.SessionFactory
	Crawler   schemas.Crawler
	Batch     schemas.BatchEngine
	Scheduler Scheduler
	Devices   DeviceCatalog
}

// Orchestrator exposes every scan operation.
type Orchestrator struct {
	cfg       config.Interface
	logger    *zap.Logger
	store     schemas.Store
	sessions  schemas.SessionFactory
	crawler   schemas.Crawler
	batch     schemas.BatchEngine
	scheduler Scheduler
	devices   DeviceCatalog
}

// New creates an Orchestrator.
func New(d Deps) (*Orchestrator, error) {
	if d.Config == nil ||
		d.Logger == nil ||
		d.Store == nil ||
		d.Sessions == nil ||
		d.Crawler == nil ||
		d.Batch == nil ||
		d.Scheduler == nil ||
		d.Devices == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:       d.Config,
		logger:    d.Logger.Named("orchestrator"),
		store:     d.Store,
		sessions:  d.Sessions,
		crawler:   d.Crawler,
		batch:     d.Batch,
		scheduler: d.Scheduler,
		devices:   d.Devices,
	}, nil
}

// CreateScan validates the input, discovers the URL set through a fresh session
// and persists the request as pending.
func (o *Orchestrator) CreateScan(ctx context.Context, in schemas.CreateScanInput) (*schemas.ScanRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Device == "" {
		in.Device = o.cfg.Executor().DefaultDevice
	}

	session, err := o.sessions.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browsing session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			o.logger.Warn("Failed to close discovery session", zap.Error(err))
		}
	}()

	urls, err := o.crawler.Discover(ctx, session, in.URL, in.Depth)
	if err != nil {
		return nil, fmt.Errorf("url discovery failed: %w", err)
	}

	req := &schemas.ScanRequest{
		Name:      in.Name,
		URL:       in.URL,
		Guidance:  in.Guidance,
		Depth:     in.Depth,
		Device:    in.Device,
		Steps:     in.Steps,
		URLs:      urls,
		Username:  in.Username,
		ProjectID: in.ProjectID,
	}
	if _, err := o.store.CreateScanRequest(ctx, req); err != nil {
		return nil, err
	}
	o.logger.Info("Scan request created",
		zap.String("scan_request_id", req.ID),
		zap.String("url", req.URL),
		zap.Int("urls", len(urls)))
	return req, nil
}

// RunScans runs the ids concurrently and returns one outcome per id.
func (o *Orchestrator) RunScans(ctx context.Context, ids []string, urls []string, device string) ([]schemas.RunOutcome, error) {
	ids = compact(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: please provide a scanRequestId", schemas.ErrValidation)
	}
	return o.batch.RunBatch(ctx, ids, urls, device), nil
}

// ScheduleScans sets the run time of every id.
func (o *Orchestrator) ScheduleScans(ctx context.Context, ids []string, runAt string) ([]schemas.ScheduleOutcome, error) {
	return o.scheduler.Schedule(ctx, compact(ids), runAt)
}

// Sweep runs every scan whose schedule has elapsed.
func (o *Orchestrator) Sweep(ctx context.Context) (schemas.SweepReport, error) {
	return o.scheduler.Sweep(ctx)
}

// EditScan updates the editable fields of a request.
func (o *Orchestrator) EditScan(ctx context.Context, in schemas.EditScanInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	_, err := o.store.EditScanRequest(ctx, in)
	return err
}

// DeleteScans removes the requests and everything attached to them.
func (o *Orchestrator) DeleteScans(ctx context.Context, ids []string) (int64, error) {
	ids = compact(ids)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: please provide at least one scanRequestId", schemas.ErrValidation)
	}
	n, err := o.store.DeleteScanRequests(ctx, ids)
	if err != nil {
		return 0, err
	}
	o.logger.Info("Scan requests deleted", zap.Int64("deleted", n), zap.Int("requested", len(ids)))
	return n, nil
}

// ListScans returns requests newest first.
func (o *Orchestrator) ListScans(ctx context.Context, filter schemas.ScanFilter) ([]schemas.ScanRequest, error) {
	return o.store.ListScanRequests(ctx, filter)
}

// GetScan returns one request.
func (o *Orchestrator) GetScan(ctx context.Context, id string) (*schemas.ScanRequest, error) {
	return o.store.GetScanRequest(ctx, id)
}

// URLs returns the discovered URL set of a request.
func (o *Orchestrator) URLs(ctx context.Context, id string) ([]string, error) {
	return o.store.GetURLs(ctx, id)
}

// Score recomputes the aggregate score from the stored per-URL results.
func (o *Orchestrator) Score(ctx context.Context, id string) (float64, error) {
	if _, err := o.store.GetScanRequest(ctx, id); err != nil {
		return 0, err
	}
	results, err := o.store.GetResults(ctx, id)
	if err != nil {
		return 0, err
	}
	return score.Aggregate(results), nil
}

// Report returns the request with its results, read only.
func (o *Orchestrator) Report(ctx context.Context, id string) (*schemas.ScanReport, error) {
	req, err := o.store.GetScanRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := o.store.GetResults(ctx, id)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []schemas.PerUrlResult{}
	}
	return &schemas.ScanReport{Request: req, Results: results}, nil
}

// Devices lists the stored and builtin emulation profiles.
func (o *Orchestrator) Devices(ctx context.Context) ([]schemas.DeviceProfile, error) {
	return o.devices.List(ctx)
}

// Guidance lists the guidance levels, falling back to the configured defaults
// when none are stored.
func (o *Orchestrator) Guidance(ctx context.Context) ([]string, error) {
	levels, err := o.store.ListGuidanceLevels(ctx)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return o.cfg.Guidance().DefaultLevels, nil
	}
	return levels, nil
}

// compact trims ids and drops empty ones.
func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
