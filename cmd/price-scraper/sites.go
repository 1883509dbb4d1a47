package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/kaidolaptops/price-scraper/internal/sites"
	"github.com/spf13/cobra"
)

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List supported shops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SITE\tDOMAIN\tSELECTOR")
			for _, s := range sites.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s, s.Domain(), s.Selector())
			}
			return w.Flush()
		},
	}
}
