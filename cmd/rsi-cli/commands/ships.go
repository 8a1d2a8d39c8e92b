package commands

import (
	"fmt"
	"strings"

	"gorsi/lib/fuzzy"
	"gorsi/lib/rsi/shipmatrix"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	shipsCmd.AddCommand(shipsSearchCmd)
	rootCmd.AddCommand(shipsCmd)
}

func renderShips(ships []shipmatrix.Ship, scores []int) {
	t := newTable()
	header := table.Row{"ID", "Name", "Manufacturer", "Focus", "Status", "Pledge", "Loaners"}
	if scores != nil {
		header = append(header, "Score")
	}
	t.AppendHeader(header)
	for i, s := range ships {
		pledge := ""
		if s.PledgeCost > 0 {
			pledge = fmt.Sprintf("$%.2f", s.PledgeCost)
		}
		loaners := make([]string, len(s.Loaners))
		for j, l := range s.Loaners {
			loaners[j] = l.Name
		}
		row := table.Row{int(s.ID), s.Name, s.Manufacturer.Code, s.Focus, s.ProductionStatus, pledge, strings.Join(loaners, ", ")}
		if scores != nil {
			row = append(row, scores[i])
		}
		t.AppendRow(row)
	}
	t.Render()
}

var shipsCmd = &cobra.Command{
	Use:   "ships",
	Short: "Lists the ship matrix.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ships, err := getGlobals(cmd.Context()).Site.ShipMatrix.List(cmd.Context())
		if err != nil {
			return err
		}
		renderShips(ships, nil)
		return nil
	},
}

var shipsSearchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Fuzzy searches the ship matrix by name.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		matrix := getGlobals(cmd.Context()).Site.ShipMatrix
		results, err := matrix.SearchByName(cmd.Context(), strings.Join(args, " "), fuzzy.DefaultCutoff, 10)
		if err != nil {
			return err
		}
		ships := make([]shipmatrix.Ship, len(results))
		scores := make([]int, len(results))
		for i, r := range results {
			ships[i] = r.Record
			scores[i] = r.Score
		}
		renderShips(ships, scores)
		return nil
	},
}
