package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plantarium-platform/apisync-go/internal/config"
	"github.com/plantarium-platform/apisync-go/internal/logger"
	"github.com/plantarium-platform/apisync-go/internal/manager"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncFlags struct {
	configFile string
	full       bool
	services   string
	logLevel   string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile every service and publish the product",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSync(ctx, cmd)
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncFlags.configFile, "config", "c", "", "configuration file (default ./apisync.yaml)")
	syncCmd.Flags().BoolVar(&syncFlags.full, "full", false, "reconcile every service regardless of changes")
	syncCmd.Flags().StringVar(&syncFlags.services, "services", "", "desired-state file, overrides paths.services")
	syncCmd.Flags().StringVar(&syncFlags.logLevel, "log-level", "", "log level, overrides log.level")
	rootCmd.AddCommand(syncCmd)
}

// overrides maps the flags that were set onto configuration keys.
func overrides(cmd *cobra.Command) map[string]interface{} {
	values := make(map[string]interface{})
	if cmd.Flags().Changed("full") {
		values["reconcile.force"] = syncFlags.full
	}
	if cmd.Flags().Changed("services") {
		values["paths.services"] = syncFlags.services
	}
	if cmd.Flags().Changed("log-level") {
		values["log.level"] = syncFlags.logLevel
	}
	return values
}

func runSync(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(syncFlags.configFile, overrides(cmd))
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runManager, err := manager.NewRunManagerWithDI(cfg, log)
	if err != nil {
		return err
	}

	report, err := runManager.Run(ctx)
	if report != nil {
		printSummary(cmd, report)
	}
	if err != nil {
		log.Error("Run aborted", zap.Error(err))
		return err
	}
	return report.Err()
}

func printSummary(cmd *cobra.Command, report *models.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s: %s)\n", report.RunID, report.Mode, report.Reason)
	fmt.Fprintf(out, "%s\n", report.Summary.String())
	for _, r := range report.Summary.Results {
		if r.State == models.StateFailed {
			fmt.Fprintf(out, "  failed: %s: %s\n", r.Service.DisplayName, r.Reason)
		}
	}
}
