// internal/discovery/crawler.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

// crawlTask is a candidate URL waiting on the worklist with the depth it is evaluated at.
type crawlTask struct {
	URL   string
	Depth int
}

// Crawler discovers the same-host URL set of a site through a browsing session.
type Crawler struct {
	cfg     config.DiscoveryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ schemas.Crawler = (*Crawler)(nil)

// NewCrawler creates a crawler paced by cfg.RequestsPerSecond.
func NewCrawler(cfg config.DiscoveryConfig, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Crawler{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("discovery"),
	}
}

// Discover walks the site depth first from the seed's origin and returns the accepted
// URLs in acceptance order. A page that fails to load prunes its branch only;
// cancellation of ctx aborts the whole walk.
func (c *Crawler) Discover(ctx context.Context, session schemas.BrowsingSession, seed string, maxDepth int) ([]string, error) {
	scope, err := NewHostScope(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrValidation, err)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	log := c.logger.With(zap.String("seed", seed), zap.Int("maxDepth", maxDepth))
	log.Info("Starting URL discovery", zap.String("origin", scope.Origin()))

	visited := make(map[string]struct{})
	var accepted []string

	stack := []crawlTask{{URL: scope.Origin(), Depth: 0}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if task.Depth > maxDepth || !c.accept(task, scope, visited) {
			continue
		}
		visited[task.URL] = struct{}{}
		accepted = append(accepted, task.URL)
		log.Debug("Added URL", zap.String("url", task.URL), zap.Int("depth", task.Depth))

		// Children of a page at maxDepth could never be accepted.
		if task.Depth == maxDepth {
			continue
		}

		links, err := c.fetchLinks(ctx, session, task.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Failed to fetch page, pruning branch", zap.String("url", task.URL), zap.Error(err))
			continue
		}

		// Push in reverse so the first link on the page is explored first.
		for i := len(links) - 1; i >= 0; i-- {
			stack = append(stack, crawlTask{URL: links[i], Depth: task.Depth + 1})
		}
	}

	log.Info("URL discovery finished", zap.Int("urls", len(accepted)))
	return accepted, nil
}

// accept applies the dedup, host, fragment and structural depth filters.
func (c *Crawler) accept(task crawlTask, scope *HostScope, visited map[string]struct{}) bool {
	if _, seen := visited[task.URL]; seen {
		return false
	}
	if strings.HasSuffix(task.URL, "#") {
		return false
	}
	u, err := url.Parse(task.URL)
	if err != nil || !scope.IsInScope(u) {
		return false
	}
	return StructuralDepth(task.URL) == task.Depth
}

// fetchLinks renders one page and extracts its anchors.
func (c *Crawler) fetchLinks(ctx context.Context, session schemas.BrowsingSession, pageURL string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pageCtx := ctx
	if c.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, c.cfg.PageTimeout)
		defer cancel()
	}

	if err := session.Navigate(pageCtx, pageURL, schemas.WaitDOMContentLoaded); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	content, err := session.Content(pageCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("page timeout after %s", c.cfg.PageTimeout)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return extractLinks(content, base)
}
