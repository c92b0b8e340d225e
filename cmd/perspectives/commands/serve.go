package commands

import (
	"log/slog"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/pipeline"
	"perspectives-watch/internal/telemetry"
	"perspectives-watch/internal/trigger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var schedule string

func init() {
	serveCmd.Flags().StringVar(&schedule, "schedule", "", `cron spec to also invoke on, ex. "*/30 * * * *" or "@every 1h"`)
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the invocation trigger over http, optionally invoking on a schedule as well.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g := getGlobals(ctx)

		handler, deps, err := newHandler(ctx, g)
		if err != nil {
			return err
		}
		defer deps.close()

		telemetry.InstrumentPerfStats(ctx)

		server := trigger.NewServer(handler)
		if schedule != "" {
			cron := chrono.NewStandardCron(telemetry.SlogAPI{})
			defer cron.Stop()

			err = cron.Cron(schedule, func() {
				id := uuid.New().String()
				_, err := server.Invoke(
					pipeline.WithInvocationId(ctx, id),
					map[string]any{"source": "schedule"},
				)
				if err != nil {
					slog.Warn("scheduled invocation failed", "invocation_id", id, "err", err)
				}
			})
			if err != nil {
				return err
			}
			slog.Info("invoking on schedule", "schedule", schedule)
		}

		return server.ListenAndServe(ctx, g.config.TriggerPort)
	},
}
