package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"listing-scraper/models"
	"listing-scraper/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func printSummary(w io.Writer, summary models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("SCRAPE COMPLETE")
	t.AppendHeader(table.Row{"Site", "State", "Pages", "Records", "Malformed", "Missing", "Errors", "Reason"})
	for _, r := range summary.Results {
		t.AppendRow(table.Row{r.SiteID, r.State, r.PagesVisited, r.RecordsWritten, r.Malformed, missing(r.MissingFields), len(r.Errors), r.AbortReason})
	}
	t.AppendFooter(table.Row{"", "", "", summary.RecordsWritten(), "", "", "", fmt.Sprintf("%d aborted", summary.AbortedCount())})
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.Render()
}

// missing renders per-field counts as "address:2 price:1".
func missing(counts map[string]int) string {
	fields := make([]string, 0, len(counts))
	for f, n := range counts {
		if n > 0 {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s:%d", f, counts[f])
	}
	return strings.Join(parts, " ")
}

// loadOutputs reads every distinct output file back, for the report.
func loadOutputs(jobs []models.ScrapeJob) ([]models.ListingRecord, error) {
	paths := make(map[string]bool)
	for _, j := range jobs {
		paths[j.OutputPath] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var records []models.ListingRecord
	for _, p := range sorted {
		loaded, err := storage.StoreFor(p).Load(p)
		if err != nil {
			return nil, err
		}
		records = append(records, loaded...)
	}
	return records, nil
}
