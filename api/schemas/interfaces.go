package schemas

import (
	"context"
	"time"
)

// -- Store Interface --

// Store is the persistence contract for scan requests, results, and schedules.
// Every call is a single attempt; callers decide whether to retry.
type Store interface {
	CreateScanRequest(ctx context.Context, req *ScanRequest) (string, error)
	GetScanRequest(ctx context.Context, id string) (*ScanRequest, error)
	ListScanRequests(ctx context.Context, filter ScanFilter) ([]ScanRequest, error)
	EditScanRequest(ctx context.Context, in EditScanInput) (int64, error)
	DeleteScanRequests(ctx context.Context, ids []string) (int64, error)
	GetURLs(ctx context.Context, id string) ([]string, error)

	// SaveResult persists a single per-URL result as soon as it is produced.
	SaveResult(ctx context.Context, res *PerUrlResult) (string, error)
	GetResults(ctx context.Context, scanRequestID string) ([]PerUrlResult, error)
	// CompleteScanRequest marks the request Complete with its score and last-run time.
	CompleteScanRequest(ctx context.Context, id string, score float64, ranAt time.Time) error

	// UpsertSchedule inserts or replaces the schedule entry for the request and
	// records the run time on the request in the same transaction.
	UpsertSchedule(ctx context.Context, entry ScheduleEntry) error
	// DueSchedules returns entries whose run time is at or before now.
	DueSchedules(ctx context.Context, now time.Time) ([]DueScan, error)
	// DetachSchedule deletes the entry and clears the request's scheduled time.
	DetachSchedule(ctx context.Context, scanRequestID string) error

	GetDeviceProfile(ctx context.Context, name string) (*DeviceProfile, error)
	ListDeviceProfiles(ctx context.Context) ([]DeviceProfile, error)
	ListGuidanceLevels(ctx context.Context) ([]string, error)
}

// ScanFilter narrows ListScanRequests. Empty fields match everything.
type ScanFilter struct {
	Username  string
	ProjectID string
}

// -- Engine Interfaces --

// Crawler discovers the URL set for a new scan through an open session.
type Crawler interface {
	Discover(ctx context.Context, session BrowsingSession, seed string, maxDepth int) ([]string, error)
}

// StepRunner replays pre-scan automation steps against a session.
type StepRunner interface {
	Run(ctx context.Context, session BrowsingSession, steps []Step) error
}

// ScanExecutor runs one scan request end to end.
type ScanExecutor interface {
	Run(ctx context.Context, scanRequestID string, urls []string, device string) (RunOutcome, error)
}

// BatchEngine runs several scans concurrently and joins on all of them.
type BatchEngine interface {
	RunBatch(ctx context.Context, ids []string, urls []string, device string) []RunOutcome
}
