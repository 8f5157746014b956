// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/internal/browser"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/devices"
	"github.com/xkilldash9x/barrier-cli/internal/discovery"
	"github.com/xkilldash9x/barrier-cli/internal/engine"
	"github.com/xkilldash9x/barrier-cli/internal/executor"
	"github.com/xkilldash9x/barrier-cli/internal/network"
	"github.com/xkilldash9x/barrier-cli/internal/orchestrator"
	"github.com/xkilldash9x/barrier-cli/internal/scheduler"
	"github.com/xkilldash9x/barrier-cli/internal/steps"
	"github.com/xkilldash9x/barrier-cli/internal/store"
)

// ComponentFactory creates the component graph. Commands depend on this
// interface so they can be tested without a database or a browser.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires every component. The browser manager is bound to ctx, so ctx
// should live as long as the process.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database Pool
	dbPool, err := InitializeDBPool(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.DBPool = dbPool
	logger.Debug("Database connection pool initialized.")

	// 2. Store
	dbStore, err := store.New(ctx, dbPool, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
		return nil, initializationErr
	}
	if err := dbStore.Migrate(ctx); err != nil {
		initializationErr = fmt.Errorf("failed to migrate database: %w", err)
		return nil, initializationErr
	}
	components.Store = dbStore
	logger.Debug("Store service initialized.")

	// 3. Browser Manager
	clientCfg := network.NewClientConfig(logger.Named("http"))
	if cfg.Analysis().FetchTimeout > 0 {
		clientCfg.RequestTimeout = cfg.Analysis().FetchTimeout
	}
	scripts := browser.NewScriptLoader(cfg.Analysis(), network.NewClient(clientCfg), logger)
	browserManager := browser.NewManager(ctx, cfg, scripts, logger)
	components.BrowserManager = browserManager
	logger.Debug("Browser manager initialized.")

	// 4. Scan pipeline
	registry := devices.NewRegistry(dbStore, cfg.Executor().DefaultDevice, logger)
	crawler := discovery.NewCrawler(cfg.Discovery(), logger)
	runner := steps.NewRunner(logger)
	exec := executor.New(dbStore, browserManager, runner, registry, cfg.Executor(), logger)

	batch, err := engine.New(cfg, exec, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize batch engine: %w", err)
		return nil, initializationErr
	}
	logger.Debug("Scan pipeline initialized.")

	// 5. Scheduler
	sched := scheduler.New(dbStore, exec, logger)
	components.Scheduler = sched
	components.Trigger = scheduler.NewTrigger(cfg.Scheduler(), sched, logger)

	// 6. Orchestrator
	orch, err := orchestrator.New(orchestrator.Deps{
		Config:    cfg,
		Logger:    logger,
		Store:     dbStore,
		Sessions:  browserManager,
		Crawler:   crawler,
		Batch:     batch,
		Scheduler: sched,
		Devices:   registry,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	logger.Info("All components initialized successfully.")
	return components, nil
}
