package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusLanguage string

func init() {
	statusCmd.Flags().StringVar(&statusLanguage, "lang", "", "The language of the status page.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [--lang <code>]",
	Short: "Shows the status of the game and website systems.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := getGlobals(cmd.Context()).Site.Status.System(cmd.Context(), statusLanguage)
		if err != nil {
			return err
		}
		fmt.Println("summary:", status.SummaryStatus)

		t := newTable()
		t.AppendHeader(table.Row{"System", "Status", "Unresolved"})
		for _, s := range status.Systems {
			t.AppendRow(table.Row{s.Name, s.Status, len(s.UnresolvedIssues)})
		}
		t.Render()
		return nil
	},
}
