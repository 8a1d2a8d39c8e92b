package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	roadmapStart string
	roadmapEnd   string
)

func init() {
	roadmapCmd.Flags().StringVar(&roadmapStart, "start", "", "The first day to include (YYYY-MM-DD), defaults to today.")
	roadmapCmd.Flags().StringVar(&roadmapEnd, "end", "", "The last day to include (YYYY-MM-DD), defaults to 90 days after start.")
	rootCmd.AddCommand(roadmapCmd)
}

var roadmapCmd = &cobra.Command{
	Use:   "roadmap [--start <date>] [--end <date>]",
	Short: "Lists the deliverables on the progress tracker.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		if roadmapStart != "" {
			var err error
			start, err = time.Parse(time.DateOnly, roadmapStart)
			if err != nil {
				return err
			}
		}
		end := start.AddDate(0, 0, 90)
		if roadmapEnd != "" {
			var err error
			end, err = time.Parse(time.DateOnly, roadmapEnd)
			if err != nil {
				return err
			}
		}

		teams, err := getGlobals(cmd.Context()).Site.Roadmap.Fetch(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Team", "Deliverable", "Start", "End"})
		for _, team := range teams {
			for _, d := range team.Deliverables {
				t.AppendRow(table.Row{team.Title, d.Title, d.StartDate, d.EndDate})
			}
		}
		t.Render()
		return nil
	},
}
