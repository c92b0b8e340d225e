package commands

import (
	"fmt"
	"io"
	"os"

	"perspectives-watch/internal/listing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var tableId string

func init() {
	parseCmd.Flags().StringVar(&tableId, "table-id", listing.DefaultTableId, "id of the listing table")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parses a saved listing page (or stdin when the file is '-') and prints the classes in it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var markup []byte
		var err error
		if args[0] == "-" {
			markup, err = io.ReadAll(cmd.InOrStdin())
		} else {
			markup, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		parser := listing.Parser{TableId: tableId}
		sessions, err := parser.Parse(cmd.Context(), markup)
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Session", "Class", "City", "Start", "End"})
		for _, session := range sessions.SessionNames() {
			for _, name := range sessions.ClassNames(session) {
				record := sessions[session][name]
				t.AppendRow(table.Row{session, name, record.City, record.Start, record.End})
			}
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d classes", sessions.Count())})
		t.Render()
		return nil
	},
}
