package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var skipOrgs bool

func init() {
	citizenCmd.Flags().BoolVar(&skipOrgs, "skip-orgs", false, "Do not fetch the citizen's organizations.")
	rootCmd.AddCommand(citizenCmd)
}

var citizenCmd = &cobra.Command{
	Use:   "citizen <handle> [--skip-orgs]",
	Short: "Shows a citizen's public profile.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getGlobals(cmd.Context()).Site.Citizen(cmd.Context(), args[0], skipOrgs)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Handle", c.Handle},
			{"Username", c.Username},
			{"Title", c.Title},
			{"Record", c.RecordText},
			{"Enlisted", c.Enlisted},
			{"Location", c.Location},
			{"Languages", strings.Join(c.Languages, ", ")},
			{"URL", c.URL},
		})
		t.Render()

		if len(c.Orgs) == 0 {
			return nil
		}
		orgs := newTable()
		orgs.AppendHeader(table.Row{"Name", "SID", "Rank", "Roles"})
		for _, o := range c.Orgs {
			orgs.AppendRow(table.Row{o.Name, o.SID, o.Rank, strings.Join(o.Roles, ", ")})
		}
		orgs.Render()
		return nil
	},
}
