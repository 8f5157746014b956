// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

// ErrManagerClosed is returned by Open after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

const sessionCleanupTimeout = 10 * time.Second

// Manager opens isolated browsing sessions, each backed by its own browser
// process, and tracks them so Shutdown can close whatever is still open.
type Manager struct {
	rootCtx  context.Context
	cfg      config.BrowserConfig
	runCfg   config.AnalysisConfig
	scripts  *ScriptLoader
	logger   *zap.Logger
	sessions map[string]*Session
	mu       sync.Mutex
	wg       sync.WaitGroup
	closed   bool
}

var _ schemas.SessionFactory = (*Manager)(nil)

// NewManager creates a manager. Browsers are launched lazily by Open and are
// all torn down when rootCtx is canceled.
func NewManager(rootCtx context.Context, cfg config.Interface, scripts *ScriptLoader, logger *zap.Logger) *Manager {
	return &Manager{
		rootCtx:  rootCtx,
		cfg:      cfg.Browser(),
		runCfg:   cfg.Analysis(),
		scripts:  scripts,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
}

// Open launches a browser and returns a session owning it.
func (m *Manager) Open(ctx context.Context) (schemas.BrowsingSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	// Increment before releasing the lock so Shutdown cannot miss this session.
	m.wg.Add(1)
	m.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(m.rootCtx, AllocatorOptions(m.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	var session *Session
	session = newSession(tabCtx, cancel, m.cfg, m.runCfg, m.scripts, m.logger, func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	})

	if err := session.initialize(ctx); err != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), sessionCleanupTimeout)
		defer cleanupCancel()
		_ = session.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to open browsing session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// ActiveSessions reports how many sessions are open.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown refuses new sessions, closes the open ones and waits for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(open)))
	for _, s := range open {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All sessions closed gracefully.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for browser sessions to close: %w", ctx.Err())
	}
}
