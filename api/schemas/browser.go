package schemas

import (
	"context"
	"time"
)

// -- Browsing Session Schemas --

// WaitPolicy selects what a navigation waits for before returning.
type WaitPolicy int

const (
	// WaitLoad returns once the load event fired.
	WaitLoad WaitPolicy = iota
	// WaitDOMContentLoaded returns once the document body is ready.
	WaitDOMContentLoaded
	// WaitNetworkIdle returns once no request has been in flight for the quiet period.
	WaitNetworkIdle
	// WaitNetworkAlmostIdle tolerates two long-lived connections, such as a
	// long poll or an analytics beacon.
	WaitNetworkAlmostIdle
)

// MaxInflight is the number of open requests a network-idle policy tolerates.
func (w WaitPolicy) MaxInflight() int {
	if w == WaitNetworkAlmostIdle {
		return 2
	}
	return 0
}

func (w WaitPolicy) String() string {
	switch w {
	case WaitDOMContentLoaded:
		return "domcontentloaded"
	case WaitNetworkIdle:
		return "networkidle"
	case WaitNetworkAlmostIdle:
		return "networkidle2"
	default:
		return "load"
	}
}

// QueryKind distinguishes CSS selectors from XPath expressions.
type QueryKind int

const (
	QueryCSS QueryKind = iota
	QueryXPath
)

// Query is a resolvable element query built from a step's location value.
type Query struct {
	Kind QueryKind
	Expr string
}

func (q Query) String() string {
	if q.Kind == QueryXPath {
		return "xpath:" + q.Expr
	}
	return q.Expr
}

// ElementHandle refers to an element resolved in a live session.
type ElementHandle interface {
	// Query returns the query the handle was resolved from.
	Query() Query
}

// DeviceProfile is a named viewport and user agent emulation profile.
type DeviceProfile struct {
	Name              string  `json:"name"`
	UserAgent         string  `json:"userAgent"`
	Width             int64   `json:"width"`
	Height            int64   `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	Mobile            bool    `json:"isMobile"`
	Touch             bool    `json:"hasTouch"`
	Landscape         bool    `json:"isLandscape"`
}

// DefaultDeviceProfile is used when a scan names no device at all.
var DefaultDeviceProfile = DeviceProfile{
	Name:              "Desktop",
	UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Width:             1920,
	Height:            1080,
	DeviceScaleFactor: 1,
}

// BrowsingSession is one externally controlled page. It is owned by exactly one
// scan run and must not be driven concurrently.
type BrowsingSession interface {
	ID() string
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	// WaitForNavigation waits for the page to settle after an action.
	WaitForNavigation(ctx context.Context, wait WaitPolicy) error
	Emulate(ctx context.Context, device DeviceProfile) error
	CurrentURL(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	// Resolve waits for the first element matching q. A zero timeout falls back
	// to the session default; a zero default waits until ctx is done.
	Resolve(ctx context.Context, q Query, timeout time.Duration) (ElementHandle, error)
	Click(ctx context.Context, el ElementHandle) error
	Type(ctx context.Context, el ElementHandle, text string) error
	Select(ctx context.Context, el ElementHandle, value string) error
	SetDefaultTimeout(d time.Duration)
	DefaultTimeout() time.Duration
	RunAnalysis(ctx context.Context, tags []string) (*AnalysisResult, error)
	Close(ctx context.Context) error
}

// SessionFactory opens isolated browsing sessions.
type SessionFactory interface {
	Open(ctx context.Context) (BrowsingSession, error)
}
