// File: cmd/scan.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/observability"
)

// newScanCmd groups the scan request lifecycle commands.
func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Create, run, schedule and manage scan requests",
	}
	scanCmd.AddCommand(
		newScanCreateCmd(),
		newScanRunCmd(),
		newScanScheduleCmd(),
		newScanEditCmd(),
		newScanDeleteCmd(),
		newScanListCmd(),
		newScanShowCmd(),
		newScanURLsCmd(),
		newScanScoreCmd(),
	)
	return scanCmd
}

func newScanCreateCmd() *cobra.Command {
	var (
		in        schemas.CreateScanInput
		stepsFile string
	)
	cmd := &cobra.Command{
		Use:   "create <url>",
		Short: "Crawl a site and store a new scan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, cfg config.Interface, b *backend) error {
				in.URL = args[0]
				if !cmd.Flags().Changed("depth") {
					in.Depth = cfg.Discovery().MaxDepth
				}
				if stepsFile != "" {
					steps, err := readSteps(stepsFile)
					if err != nil {
						return err
					}
					in.Steps = steps
				}

				req, err := b.API.CreateScan(ctx, in)
				if err != nil {
					return err
				}
				observability.GetLogger().Info("Scan request created",
					zap.String("scan_request_id", req.ID), zap.Int("urls", len(req.URLs)))
				return printJSON(cmd, map[string]interface{}{"request_id": req.ID, "urls": req.URLs})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&in.Guidance, "guidance", "g", nil, "Guidance levels to test against (e.g. wcag2a,wcag2aa). Required.")
	cmd.Flags().IntVarP(&in.Depth, "depth", "d", 0, "Maximum structural crawl depth. (Overrides config/env)")
	cmd.Flags().StringVar(&in.Device, "device", "", "Device profile to emulate. Defaults to the configured device.")
	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "Display name of the scan request.")
	cmd.Flags().StringVar(&in.ProjectID, "project", "", "Project the scan request belongs to.")
	cmd.Flags().StringVar(&in.Username, "user", os.Getenv("USER"), "User the scan request is attributed to.")
	cmd.Flags().StringVar(&stepsFile, "steps", "", "Path to a JSON file holding the pre-scan steps.")
	_ = cmd.MarkFlagRequired("guidance")
	return cmd
}

func newScanRunCmd() *cobra.Command {
	var (
		urls        []string
		device      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "run <id>...",
		Short: "Run one or more scan requests now",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.SetEngineWorkerConcurrency(concurrency)
			}
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				outcomes, err := b.API.RunScans(ctx, args, urls, device)
				if err != nil {
					return err
				}
				for _, o := range outcomes {
					fmt.Fprintln(cmd.ErrOrStderr(), o.Message)
				}
				return printJSON(cmd, outcomes)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&urls, "url", "u", nil, "Scan only these URLs instead of the stored set.")
	cmd.Flags().StringVar(&device, "device", "", "Override the stored device profile for this run.")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of scan requests run at once. (Overrides config/env)")
	return cmd
}

func newScanScheduleCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "schedule <id>...",
		Short: "Schedule scan requests to run at a later time",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				outcomes, err := b.API.ScheduleScans(ctx, args, at)
				if err != nil {
					return err
				}
				return printJSON(cmd, outcomes)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time to run at (e.g. 2030-01-01T09:00:00Z). Required.")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newScanEditCmd() *cobra.Command {
	var (
		name, device, stepsFile string
		depth                   int
		guidance                []string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit the stored settings of a scan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				current, err := b.API.GetScan(ctx, args[0])
				if err != nil {
					return err
				}

				// Unset flags keep the stored value.
				in := schemas.EditScanInput{
					ID:       current.ID,
					Name:     current.Name,
					Device:   current.Device,
					Depth:    current.Depth,
					Guidance: current.Guidance,
				}
				flags := cmd.Flags()
				if flags.Changed("name") {
					in.Name = name
				}
				if flags.Changed("device") {
					in.Device = device
				}
				if flags.Changed("depth") {
					in.Depth = depth
				}
				if flags.Changed("guidance") {
					in.Guidance = guidance
				}
				if stepsFile != "" {
					steps, err := readSteps(stepsFile)
					if err != nil {
						return err
					}
					in.Steps = steps
				}

				if err := b.API.EditScan(ctx, in); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scan request %s updated.\n", in.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "New display name.")
	cmd.Flags().StringVar(&device, "device", "", "New device profile.")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "New maximum crawl depth.")
	cmd.Flags().StringSliceVarP(&guidance, "guidance", "g", nil, "New guidance levels.")
	cmd.Flags().StringVar(&stepsFile, "steps", "", "Path to a JSON file replacing the pre-scan steps.")
	return cmd
}

func newScanDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete scan requests with their results and schedules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				deleted, err := b.API.DeleteScans(ctx, args)
				if err != nil {
					return err
				}
				if deleted == 0 {
					return fmt.Errorf("no records found for the given scan request ids: %w", schemas.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d scan request(s).\n", deleted)
				return nil
			})
		},
	}
}

func newScanListCmd() *cobra.Command {
	var filter schemas.ScanFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan requests, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				requests, err := b.API.ListScans(ctx, filter)
				if err != nil {
					return err
				}
				if requests == nil {
					requests = []schemas.ScanRequest{}
				}
				return printJSON(cmd, requests)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Username, "user", "", "Only requests created by this user.")
	cmd.Flags().StringVar(&filter.ProjectID, "project", "", "Only requests in this project.")
	return cmd
}

func newScanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored scan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				req, err := b.API.GetScan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, req)
			})
		},
	}
}

func newScanURLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "urls <id>",
		Short: "Print the URLs discovered for a scan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				urls, err := b.API.URLs(ctx, args[0])
				if err != nil {
					return err
				}
				for _, u := range urls {
					fmt.Fprintln(cmd.OutOrStdout(), u)
				}
				return nil
			})
		},
	}
}

func newScanScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <id>",
		Short: "Print the aggregate accessibility score of a scan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, _ config.Interface, b *backend) error {
				score, err := b.API.Score(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", score)
				return nil
			})
		},
	}
}

// readSteps loads a JSON array of steps from path.
func readSteps(path string) ([]schemas.Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps file: %w", err)
	}
	var steps []schemas.Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("%w: steps file %s is not a JSON array of steps: %v", schemas.ErrValidation, path, err)
	}
	return steps, nil
}
