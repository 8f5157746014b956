// internal/browser/session_integration_test.go
package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/browser"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

const fakeAxe = `window.axe = { run: async (ctx, opts) => ({
  url: location.href,
  timestamp: new Date().toISOString(),
  testEngine: { name: 'axe-core', version: 'test' },
  testEnvironment: { userAgent: navigator.userAgent, windowWidth: innerWidth, windowHeight: innerHeight },
  violations: [{ id: 'image-alt', tags: (opts.runOnly || { values: [] }).values, impact: 'critical',
                 nodes: [{ html: '<img src="x">', target: ['img'] }] }],
  passes: [{ id: 'html-has-lang', tags: [], nodes: [] }],
  incomplete: [],
  inapplicable: []
}) };`

const fixturePage = `<!doctype html><html lang="en"><body>
<a href="/next">next</a>
<input id="name" name="name">
<select id="choice" onchange="document.getElementById('out').textContent = this.value">
  <option value="a">A</option><option value="b">B</option>
</select>
<div id="out"></div>
<img src="x">
</body></html>`

func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium binary on PATH")
}

func TestSession_Integration(t *testing.T) {
	requireChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/axe.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, fakeAxe)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, fixturePage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.AnalysisCfg.ScriptURL = srv.URL + "/axe.js"
	cfg.BrowserCfg.NetworkIdleQuiet = 100 * time.Millisecond
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	manager := browser.NewManager(ctx, cfg, browser.NewScriptLoader(cfg.Analysis(), srv.Client(), logger), logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer shutdownCancel()
		assert.NoError(t, manager.Shutdown(shutdownCtx))
	}()

	session, err := manager.Open(ctx)
	require.NoError(t, err)
	defer session.Close(context.Background())
	assert.Equal(t, 1, manager.ActiveSessions())

	require.NoError(t, session.Emulate(ctx, schemas.DefaultDeviceProfile))
	require.NoError(t, session.Navigate(ctx, srv.URL+"/", schemas.WaitNetworkIdle))

	current, err := session.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", current)

	html, err := session.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `href="/next"`)

	input, err := session.Resolve(ctx, schemas.Query{Kind: schemas.QueryCSS, Expr: "#name"}, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, session.Type(ctx, input, "alice"))

	sel, err := session.Resolve(ctx, schemas.Query{Kind: schemas.QueryXPath, Expr: "//select[@id='choice']"}, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, session.Select(ctx, sel, "b"))

	html, err = session.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `<div id="out">b</div>`)

	_, err = session.Resolve(ctx, schemas.Query{Kind: schemas.QueryCSS, Expr: "#missing"}, 300*time.Millisecond)
	assert.ErrorIs(t, err, schemas.ErrElementTimeout)

	result, err := session.RunAnalysis(ctx, []string{"wcag2a"})
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "image-alt", result.Violations[0].ID)
	assert.Equal(t, []string{"wcag2a"}, result.Violations[0].Tags)
	assert.Equal(t, []string{"img"}, result.Violations[0].Nodes[0].Target)
	assert.Len(t, result.Passes, 1)
	assert.Equal(t, "Desktop", result.TestEnvironment.Device)
	assert.EqualValues(t, 1920, result.TestEnvironment.WindowWidth)

	require.NoError(t, session.Close(context.Background()))
	assert.Zero(t, manager.ActiveSessions())
}
