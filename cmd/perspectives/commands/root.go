package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"perspectives-watch/internal/config"
	"perspectives-watch/internal/serviceutil"
	"perspectives-watch/internal/telemetry"

	"github.com/spf13/cobra"
)

const serviceName = "perspectives-watch"

var (
	configPath string
	dryRun     bool

	// set up by the root pre-run, shut down once the command returns
	activeTelemetry telemetry.Telemetry
	setupTelemetry  = telemetry.SetupFromEnv
)

var rootCmd = &cobra.Command{
	Use:   "perspectives",
	Short: "perspectives watches the Perspectives class listing and announces newly added classes.",
	Long: `perspectives watches the Perspectives class listing and announces newly added classes.

Configuration is read from config.json5 (merged with config.local.json5) and
then from the environment. NOTIFY_DESTINATION and STORE_TABLE must be set
for anything that touches the store or the notification sink.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		telemetry.InitSlog(cfg.LogLevel)

		activeTelemetry, err = setupTelemetry(cmd.Context(), serviceName)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}

		cmd.SetContext(setGlobals(cmd.Context(), &globals{
			config: cfg,
			dryRun: dryRun,
		}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "path to the json5 config file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log notifications instead of publishing them, new classes are not written to the store")
}

// execute runs the command line and flushes telemetry afterwards, whether
// or not the command failed.
func execute(ctx context.Context) error {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		err := activeTelemetry.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
		activeTelemetry = telemetry.Telemetry{}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func Execute() {
	ctx := serviceutil.SignalContext(context.Background())
	if err := execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
