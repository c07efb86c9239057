package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"listing-scraper/models"
	"listing-scraper/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, models.RunSummary{Results: []models.RunResult{
		{SiteID: "zillow", State: models.StateDone, PagesVisited: 3, RecordsWritten: 120,
			MissingFields: map[string]int{"price": 4, "address": 2, "title": 0}},
		{SiteID: "airbnb", State: models.StateAborted, AbortReason: "Blocked"},
	}})

	out := buf.String()
	assert.Contains(t, out, "SCRAPE COMPLETE")
	assert.Contains(t, out, "zillow")
	assert.Contains(t, out, "Blocked")
	assert.Contains(t, out, "1 aborted")
	assert.Contains(t, out, "address:2 price:4")
	assert.NotContains(t, out, "title:0")
}

func TestLoadOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "a.csv")
	xlsxPath := filepath.Join(dir, "b.xlsx")
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, storage.CSVStore{}.Save(csvPath, []models.ListingRecord{
		{SourceSite: "zillow", NaturalKey: "1", URL: "https://z/1", ScrapedAt: at},
	}))
	require.NoError(t, storage.XLSXStore{}.Save(xlsxPath, []models.ListingRecord{
		{SourceSite: "airbnb", NaturalKey: "9", URL: "https://a/9", ScrapedAt: at},
	}))

	records, err := loadOutputs([]models.ScrapeJob{
		{SiteID: "zillow", OutputPath: csvPath},
		{SiteID: "rentfaster", OutputPath: csvPath},
		{SiteID: "airbnb", OutputPath: xlsxPath},
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
