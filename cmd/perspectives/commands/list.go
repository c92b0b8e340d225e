package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listSession string

func init() {
	listCmd.Flags().StringVarP(&listSession, "session", "s", "", "only list classes of this session")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the classes that have already been announced and have not expired.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deps, err := openStoreOnly(ctx, getGlobals(ctx).config)
		if err != nil {
			return err
		}
		defer deps.close()

		records, err := deps.store.List(ctx, listSession)
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Session", "Class", "City", "Start", "End", "Seen", "Expires"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.Session, r.Name, r.City, r.Start, r.End,
				r.Created,
				time.Unix(r.Ttl, 0).UTC().Format(time.ANSIC),
			})
		}
		t.Render()
		return nil
	},
}
