// File: cmd/backend.go
package cmd

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/observability"
	"github.com/xkilldash9x/barrier-cli/internal/server"
	"github.com/xkilldash9x/barrier-cli/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sweepTrigger is the periodic sweep the serve command runs alongside the API.
type sweepTrigger interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// backend bundles what a command needs from the component graph.
type backend struct {
	API      server.API
	Trigger  sweepTrigger
	shutdown func()
}

// Close releases every component. It is safe to call on a nil backend.
func (b *backend) Close() {
	if b != nil && b.shutdown != nil {
		b.shutdown()
	}
}

// backendProvider creates the backend. Tests swap it for one backed by mocks so
// commands run without a database or a browser.
type backendProvider interface {
	Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*backend, error)
}

type defaultBackendProvider struct {
	factory service.ComponentFactory
}

func (p *defaultBackendProvider) Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*backend, error) {
	components, err := p.factory.Create(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return &backend{
		API:      components.Orchestrator,
		Trigger:  components.Trigger,
		shutdown: components.Shutdown,
	}, nil
}

var backends backendProvider = &defaultBackendProvider{factory: service.NewComponentFactory()}

// withBackend loads the config, opens the backend and closes it after fn returns.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Interface, b *backend) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	b, err := backends.Open(ctx, cfg, observability.GetLogger())
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, cfg, b)
}

// printJSON writes v to the command's stdout, indented.
func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// writeJSONFile writes v to path, indented.
func writeJSONFile(path string, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
