// internal/browser/axe_script.go
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/internal/config"
)

// maxScriptSize bounds the downloaded analyzer bundle.
const maxScriptSize = 8 << 20

// ScriptLoader provides the accessibility analyzer bundle injected into pages.
// The first successful load is cached for the life of the process.
type ScriptLoader struct {
	cfg    config.AnalysisConfig
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	script string
}

// NewScriptLoader creates a loader. A nil client uses http.DefaultClient.
func NewScriptLoader(cfg config.AnalysisConfig, client *http.Client, logger *zap.Logger) *ScriptLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &ScriptLoader{cfg: cfg, client: client, logger: logger.Named("axe_loader")}
}

// Load returns the bundle, reading script_path when set and fetching script_url otherwise.
func (l *ScriptLoader) Load(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.script != "" {
		return l.script, nil
	}

	var (
		script string
		err    error
	)
	if l.cfg.ScriptPath != "" {
		script, err = l.readFile()
	} else {
		script, err = l.fetch(ctx)
	}
	if err != nil {
		return "", err
	}
	if script == "" {
		return "", fmt.Errorf("analyzer script is empty")
	}

	l.script = script
	return script, nil
}

func (l *ScriptLoader) readFile() (string, error) {
	b, err := os.ReadFile(l.cfg.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read analyzer script %s: %w", l.cfg.ScriptPath, err)
	}
	l.logger.Debug("Loaded analyzer script from disk.", zap.String("path", l.cfg.ScriptPath), zap.Int("bytes", len(b)))
	return string(b), nil
}

func (l *ScriptLoader) fetch(ctx context.Context) (string, error) {
	if l.cfg.ScriptURL == "" {
		return "", fmt.Errorf("no analyzer script source configured")
	}
	if l.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.ScriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build analyzer script request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch analyzer script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch analyzer script: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return "", fmt.Errorf("failed to read analyzer script body: %w", err)
	}
	l.logger.Info("Fetched analyzer script.", zap.String("url", l.cfg.ScriptURL), zap.Int("bytes", len(b)))
	return string(b), nil
}
