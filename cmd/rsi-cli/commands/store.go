package commands

import (
	"fmt"

	"gorsi/lib/rsi/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	skuProduct  string
	skuSearch   string
	skuMaxPages int
)

func init() {
	skusCmd.Flags().StringVar(&skuProduct, "product", "", "Filter by product, one of the known product names (ex. standalone_ships).")
	skusCmd.Flags().StringVar(&skuSearch, "search", "", "Filter by title.")
	skusCmd.Flags().IntVar(&skuMaxPages, "max-pages", 0, "Stop after this many pages, 0 means no limit.")
	storeCmd.AddCommand(skusCmd)
	rootCmd.AddCommand(storeCmd)
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Reads the pledge store.",
}

var skusCmd = &cobra.Command{
	Use:   "skus [--product <name>] [--search <text>]",
	Short: "Lists store skus.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.SKUQuery{Search: skuSearch, MaxPages: skuMaxPages}
		if skuProduct != "" {
			id, ok := store.ProductIDs[skuProduct]
			if !ok {
				return fmt.Errorf("unknown product %q", skuProduct)
			}
			query.ProductID = id
		}

		skus, err := getGlobals(cmd.Context()).Site.Store.SKUs(cmd.Context(), query)
		if err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Title", "Price", "Stock", "Link"})
		for _, s := range skus {
			t.AppendRow(table.Row{s.Title, s.PriceText, s.Stock, s.Link})
		}
		t.Render()
		return nil
	},
}
