package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent job runs recorded in history_db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return fmt.Errorf("history_db is not configured")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		h, err := storage.OpenRunHistory(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		runs, err := h.Recent(ctx, limit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show")
}

func printHistory(w io.Writer, runs []models.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Started", "Site", "State", "Pages", "Records", "Reason"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.StartedAt.Local().Format(time.DateTime), r.SiteID, r.State, r.PagesVisited, r.RecordsWritten, r.AbortReason})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
