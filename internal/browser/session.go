// internal/browser/session.go
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

//go:embed axe_run.js
var axeRunFunction string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	axePresentJS = `typeof window.axe !== 'undefined' && typeof window.axe.run === 'function'`
	// Fired after SetValue so frameworks listening on the element see the selection.
	dispatchChangeJS = `function() {
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`

	// fallbackTimeout bounds navigations and element waits when neither the
	// session nor the browser config sets one.
	fallbackTimeout = 30 * time.Second
)

// elementHandle is a resolved DOM node of this session.
type elementHandle struct {
	query schemas.Query
	node  *cdp.Node
}

func (h *elementHandle) Query() schemas.Query { return h.query }

// emulatedDevice adapts a stored profile to chromedp's device emulation.
type emulatedDevice schemas.DeviceProfile

func (d emulatedDevice) Device() device.Info {
	scale := d.DeviceScaleFactor
	if scale <= 0 {
		scale = 1
	}
	return device.Info{
		Name:      d.Name,
		UserAgent: d.UserAgent,
		Width:     d.Width,
		Height:    d.Height,
		Scale:     scale,
		Landscape: d.Landscape,
		Mobile:    d.Mobile,
		Touch:     d.Touch,
	}
}

// Session is one chromedp tab in its own browser process. It implements schemas.BrowsingSession.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	cfg     config.BrowserConfig
	runCfg  config.AnalysisConfig
	scripts *ScriptLoader
	network *networkTracker
	onClose func()

	mu             sync.Mutex
	isClosed       bool
	defaultTimeout time.Duration
	deviceName     string
}

var _ schemas.BrowsingSession = (*Session)(nil)

func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg config.BrowserConfig,
	runCfg config.AnalysisConfig,
	scripts *ScriptLoader,
	logger *zap.Logger,
	onClose func(),
) *Session {
	id := uuid.NewString()
	sessionLogger := logger.With(zap.String("session_id", id))
	return &Session{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		logger:  sessionLogger,
		cfg:     cfg,
		runCfg:  runCfg,
		scripts: scripts,
		network: newNetworkTracker(sessionLogger),
		onClose: onClose,
	}
}

// initialize starts the browser and enables network events. The first chromedp.Run
// on a tab allocates the browser, so it must use the tab context itself; ctx only
// aborts the start-up.
func (s *Session) initialize(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-done:
		}
	}()

	s.network.attach(s.ctx)
	if err := chromedp.Run(s.ctx, network.Enable()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to start browser: %w", err)
	}
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// SetDefaultTimeout bounds navigations and element waits. Zero restores the
// configured navigation timeout.
func (s *Session) SetDefaultTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultTimeout = d
}

// DefaultTimeout returns the current default bound.
func (s *Session) DefaultTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultTimeout
}

// navigationTimeout is the session default when set, else the configured
// navigation bound. It is never zero, so browser waits always end.
func (s *Session) navigationTimeout() time.Duration {
	if d := s.DefaultTimeout(); d > 0 {
		return d
	}
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return fallbackTimeout
}

// elementTimeout is the bound of an element wait: the explicit timeout when
// positive, otherwise the navigation bound.
func (s *Session) elementTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return s.navigationTimeout()
}

// Navigate loads url and waits according to the policy.
func (s *Session) Navigate(ctx context.Context, url string, wait schemas.WaitPolicy) error {
	navCtx, cancel := bounded(ctx, s.navigationTimeout())
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url), zap.Stringer("wait", wait))
	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, deadlineCause(navCtx, err))
	}
	if err := s.settle(navCtx, wait); err != nil {
		return fmt.Errorf("page %s did not settle: %w", url, deadlineCause(navCtx, err))
	}
	return nil
}

// WaitForNavigation waits for the current page to settle after an action.
func (s *Session) WaitForNavigation(ctx context.Context, wait schemas.WaitPolicy) error {
	waitCtx, cancel := bounded(ctx, s.navigationTimeout())
	defer cancel()
	if err := s.settle(waitCtx, wait); err != nil {
		return deadlineCause(waitCtx, err)
	}
	return nil
}

func (s *Session) settle(ctx context.Context, wait schemas.WaitPolicy) error {
	switch wait {
	case schemas.WaitDOMContentLoaded:
		return s.runActions(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
	case schemas.WaitNetworkIdle, schemas.WaitNetworkAlmostIdle:
		if err := s.runActions(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return err
		}
		return s.network.WaitIdle(ctx, s.cfg.NetworkIdleQuiet, wait.MaxInflight())
	default:
		// chromedp.Navigate already waited for the load event.
		return nil
	}
}

// Emulate applies the viewport and user agent of the profile.
func (s *Session) Emulate(ctx context.Context, profile schemas.DeviceProfile) error {
	if err := s.runActions(ctx, chromedp.Emulate(emulatedDevice(profile))); err != nil {
		return fmt.Errorf("failed to emulate device %q: %w", profile.Name, err)
	}
	s.mu.Lock()
	s.deviceName = profile.Name
	s.mu.Unlock()
	return nil
}

// CurrentURL returns the page's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.runActions(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

// Content returns the serialized document.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// Resolve waits for the first element matching q.
func (s *Session) Resolve(ctx context.Context, q schemas.Query, timeout time.Duration) (schemas.ElementHandle, error) {
	timeout = s.elementTimeout(timeout)
	waitCtx, cancel := bounded(ctx, timeout)
	defer cancel()

	by := chromedp.ByQuery
	if q.Kind == schemas.QueryXPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	err := s.runActions(waitCtx, chromedp.Nodes(q.Expr, &nodes, by))
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s (waited %s)", schemas.ErrElementTimeout, q, timeout)
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", q, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("failed to resolve %s: no matching node", q)
	}
	return &elementHandle{query: q, node: nodes[0]}, nil
}

func (s *Session) handle(el schemas.ElementHandle) (*elementHandle, error) {
	h, ok := el.(*elementHandle)
	if !ok || h == nil || h.node == nil {
		return nil, fmt.Errorf("element handle %T does not belong to a browser session", el)
	}
	return h, nil
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, el schemas.ElementHandle) error {
	h, err := s.handle(el)
	if err != nil {
		return err
	}
	clickCtx, cancel := bounded(ctx, s.elementTimeout(0))
	defer cancel()

	ids := []cdp.NodeID{h.node.NodeID}
	err = s.runActions(clickCtx,
		chromedp.ScrollIntoView(ids, chromedp.ByNodeID),
		chromedp.WaitVisible(ids, chromedp.ByNodeID),
		chromedp.Click(ids, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", h.query, deadlineCause(clickCtx, err))
	}
	return nil
}

// Type focuses the element and sends the text as key events.
func (s *Session) Type(ctx context.Context, el schemas.ElementHandle, text string) error {
	h, err := s.handle(el)
	if err != nil {
		return err
	}
	typeCtx, cancel := bounded(ctx, s.elementTimeout(0))
	defer cancel()

	ids := []cdp.NodeID{h.node.NodeID}
	err = s.runActions(typeCtx,
		chromedp.Focus(ids, chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("failed to type into %s: %w", h.query, deadlineCause(typeCtx, err))
	}
	return nil
}

// Select sets the element's value and fires input and change events.
func (s *Session) Select(ctx context.Context, el schemas.ElementHandle, value string) error {
	h, err := s.handle(el)
	if err != nil {
		return err
	}
	selectCtx, cancel := bounded(ctx, s.elementTimeout(0))
	defer cancel()

	ids := []cdp.NodeID{h.node.NodeID}
	err = s.runActions(selectCtx,
		chromedp.SetValue(ids, value, chromedp.ByNodeID),
		chromedp.ActionFunc(func(c context.Context) error {
			obj, err := dom.ResolveNode().WithNodeID(h.node.NodeID).Do(c)
			if err != nil {
				return fmt.Errorf("failed to resolve node: %w", err)
			}
			_, exception, err := runtime.CallFunctionOn(dispatchChangeJS).WithObjectID(obj.ObjectID).Do(c)
			if err != nil {
				return err
			}
			if exception != nil {
				return exception
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to select %q on %s: %w", value, h.query, deadlineCause(selectCtx, err))
	}
	return nil
}

// RunAnalysis injects the analyzer when missing and runs it scoped to tags.
func (s *Session) RunAnalysis(ctx context.Context, tags []string) (*schemas.AnalysisResult, error) {
	runCtx, cancel := bounded(ctx, s.runCfg.RunTimeout)
	defer cancel()

	if err := s.ensureAnalyzer(runCtx); err != nil {
		return nil, err
	}

	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode guidance tags: %w", err)
	}

	var raw string
	expr := "(" + axeRunFunction + ")(" + string(tagJSON) + ")"
	err = s.runActions(runCtx, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", deadlineCause(runCtx, err))
	}

	var result schemas.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	s.mu.Lock()
	result.TestEnvironment.Device = s.deviceName
	s.mu.Unlock()
	return &result, nil
}

func (s *Session) ensureAnalyzer(ctx context.Context) error {
	var present bool
	if err := s.runActions(ctx, chromedp.Evaluate(axePresentJS, &present)); err != nil {
		return fmt.Errorf("failed to probe for analyzer: %w", err)
	}
	if present {
		return nil
	}

	script, err := s.scripts.Load(ctx)
	if err != nil {
		return fmt.Errorf("analyzer unavailable: %w", err)
	}
	var ok bool
	if err := s.runActions(ctx, chromedp.Evaluate(script+"\n;true", &ok)); err != nil {
		return fmt.Errorf("failed to inject analyzer: %w", err)
	}
	return nil
}

// Close terminates the tab and its browser process. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	// Give the browser a chance to exit cleanly before the contexts are torn down.
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("Graceful browser shutdown failed.", zap.Error(err))
		}
	case <-ctx.Done():
		s.logger.Warn("Timed out closing browser; forcing shutdown.")
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// runActions executes chromedp actions bounded by both the session lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// bounded applies d as a timeout when positive.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// deadlineCause reports a deadline on opCtx in place of the cancellation chromedp surfaces.
func deadlineCause(opCtx context.Context, err error) error {
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
