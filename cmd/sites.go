package cmd

import (
	"fmt"

	"listing-scraper/scraper/sites"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites an adapter exists for",
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range sites.IDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
	},
}
