package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runTimeout time.Duration

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "abandon the invocation after this long, 0 disables it")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs a single invocation: fetch the listing, store new classes and publish them.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}
		handler, deps, err := newHandler(ctx, getGlobals(ctx))
		if err != nil {
			return err
		}
		defer deps.close()

		res, err := handler.Invoke(ctx, nil)
		out, _ := json.Marshal(res)
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}
