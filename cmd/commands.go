// File: cmd/commands.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/observability"
	"github.com/xkilldash9x/barrier-cli/internal/server"
)

func newResultsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Export a scan request with its per-URL results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				report, err := b.API.Report(ctx, args[0])
				if err != nil {
					return err
				}
				if output == "" {
					return printJSON(cmd, report)
				}
				if err := writeJSONFile(output, report); err != nil {
					return err
				}
				observability.GetLogger().Info("Report written",
					zap.String("path", output), zap.Int("results", len(report.Results)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file instead of stdout.")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run every scheduled scan whose time has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				report, err := b.API.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled scan sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetServerAddr(addr)
			}
			return withBackend(cmd, func(ctx context.Context, cfg config.Interface, b *backend) error {
				logger := observability.GetLogger()
				srv, err := server.New(cfg.Server(), b.API, logger)
				if err != nil {
					return err
				}

				if err := b.Trigger.Start(ctx); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				// Run returns nil once a signal cancels ctx and the drain finishes.
				if err := srv.Run(ctx); err != nil {
					return err
				}
				logger.Info("Server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on. (Overrides config/env)")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the device profiles a scan can emulate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				devices, err := b.API.Devices(ctx)
				if err != nil {
					return err
				}
				if devices == nil {
					devices = []schemas.DeviceProfile{}
				}
				return printJSON(cmd, devices)
			})
		},
	}
}

func newGuidanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guidance",
		Short: "List the guidance levels a scan can test against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				levels, err := b.API.Guidance(ctx)
				if err != nil {
					return err
				}
				for _, level := range levels {
					fmt.Fprintln(cmd.OutOrStdout(), level)
				}
				return nil
			})
		},
	}
}
