package commands

import (
	"strings"

	"gorsi/lib/fuzzy"
	"gorsi/lib/rsi/org"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var adminMode bool

func init() {
	orgCmd.PersistentFlags().BoolVar(&adminMode, "admin", false, "Read the roster as an org admin.")
	orgCmd.AddCommand(orgMembersCmd, orgSearchCmd)
	rootCmd.AddCommand(orgCmd)
}

func openOrg(cmd *cobra.Command, symbol string) (*org.Org, error) {
	site := getGlobals(cmd.Context()).Site
	return org.New(cmd.Context(), site.Session, symbol, org.Options{AdminMode: adminMode})
}

func renderMembers(members []org.Member, scores []int) {
	t := newTable()
	header := table.Row{"Handle", "Name", "Rank", "Roles"}
	if scores != nil {
		header = append(header, "Score")
	}
	t.AppendHeader(header)
	for i, m := range members {
		row := table.Row{m.Handle, m.Name, m.Rank, strings.Join(m.Roles, ", ")}
		if scores != nil {
			row = append(row, scores[i])
		}
		t.AppendRow(row)
	}
	t.Render()
}

var orgCmd = &cobra.Command{
	Use:   "org <symbol>",
	Short: "Shows an organization's details.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrg(cmd, args[0])
		if err != nil {
			return err
		}
		d, err := o.Details(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Name", d.Name},
			{"Symbol", d.Symbol},
			{"Model", d.Model},
			{"Commitment", d.Commitment},
			{"Focus", strings.TrimSpace(d.PrimaryFocus + " / " + d.SecondaryFocus)},
			{"URL", o.URL()},
			{"Spectrum", o.SpectrumURL()},
		})
		t.Render()
		return nil
	},
}

var orgMembersCmd = &cobra.Command{
	Use:   "members <symbol>",
	Short: "Lists the visible members of an organization.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrg(cmd, args[0])
		if err != nil {
			return err
		}
		members, err := o.Members(cmd.Context())
		if err != nil {
			return err
		}
		renderMembers(members, nil)
		return nil
	},
}

var orgSearchCmd = &cobra.Command{
	Use:   "search <symbol> <handle>",
	Short: "Fuzzy searches an organization's roster by handle.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrg(cmd, args[0])
		if err != nil {
			return err
		}
		results, err := o.Search(cmd.Context(), args[1], fuzzy.DefaultCutoff, 10)
		if err != nil {
			return err
		}
		members := make([]org.Member, len(results))
		scores := make([]int, len(results))
		for i, r := range results {
			members[i] = r.Record
			scores[i] = r.Score
		}
		renderMembers(members, scores)
		return nil
	},
}
