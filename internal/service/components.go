// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/internal/browser"
	"github.com/xkilldash9x/barrier-cli/internal/orchestrator"
	"github.com/xkilldash9x/barrier-cli/internal/scheduler"
	"github.com/xkilldash9x/barrier-cli/internal/store"
)

// shutdownTimeout bounds browser teardown, which runs even when the caller's
// context has already been canceled.
const shutdownTimeout = 30 * time.Second

// Components holds every initialized service the commands and the API need.
type Components struct {
	Store          *store.Store
	BrowserManager *browser.Manager
	Scheduler      *scheduler.Scheduler
	Trigger        *scheduler.Trigger
	Orchestrator   *orchestrator.Orchestrator
	DBPool         *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown releases the components in reverse dependency order. It is safe on
// partially initialized components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. Stop the trigger so no new sweep starts.
	if c.Trigger != nil {
		if err := c.Trigger.Stop(shutdownCtx); err != nil {
			logger.Warn("Error while stopping the scheduler.", zap.Error(err))
		}
	}

	// 2. Close every browser session still open.
	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 3. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
