// internal/browser/network_idle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// networkTracker counts in-flight requests of one tab from CDP network events.
type networkTracker struct {
	logger   *zap.Logger
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	// lastActivity is the time a request last started or finished.
	lastActivity time.Time
}

func newNetworkTracker(logger *zap.Logger) *networkTracker {
	return &networkTracker{
		logger:       logger.Named("network"),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

// attach subscribes to the tab's events. The listener lives as long as tabCtx.
// network.Enable must still be run on the tab for events to arrive.
func (t *networkTracker) attach(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.started(e.RequestID)
		case *network.EventLoadingFinished:
			t.finished(e.RequestID)
		case *network.EventLoadingFailed:
			t.finished(e.RequestID)
		}
	})
}

func (t *networkTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = time.Now()
}

func (t *networkTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
}

func (t *networkTracker) snapshot() (int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), t.lastActivity
}

// WaitIdle polls until at most maxInflight requests have been open for quietPeriod.
func (t *networkTracker) WaitIdle(ctx context.Context, quietPeriod time.Duration, maxInflight int) error {
	if quietPeriod <= 0 {
		quietPeriod = 500 * time.Millisecond
	}
	ticker := time.NewTicker(quietPeriod / 4)
	defer ticker.Stop()

	for {
		count, last := t.snapshot()
		if count <= maxInflight && time.Since(last) >= quietPeriod {
			return nil
		}
		select {
		case <-ctx.Done():
			t.logger.Debug("Network idle wait aborted.", zap.Int("inflight_requests", count), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
