package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"listing-scraper/models"
)

// Columns is the header of every tabular output, in order.
var Columns = []string{"source_site", "natural_key", "title", "price", "address", "url", "scraped_at", "extra_fields"}

// TabularStore reads and atomically replaces one output file.
type TabularStore interface {
	// Load returns os.ErrNotExist (wrapped) when path does not exist.
	Load(path string) ([]models.ListingRecord, error)
	Save(path string, records []models.ListingRecord) error
}

// StoreFor picks the store from the file extension; anything that is not
// a workbook is written as CSV.
func StoreFor(path string) TabularStore {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return XLSXStore{}
	}
	return CSVStore{}
}

func toRow(r models.ListingRecord) []string {
	price := ""
	if r.Price != nil {
		price = strconv.FormatFloat(*r.Price, 'f', -1, 64)
	}
	extra := ""
	if len(r.ExtraFields) > 0 {
		// map keys are marshalled in sorted order
		b, _ := json.Marshal(r.ExtraFields)
		extra = string(b)
	}
	return []string{
		r.SourceSite,
		r.NaturalKey,
		r.Title,
		price,
		r.Address,
		r.URL,
		r.ScrapedAt.UTC().Format(time.RFC3339),
		extra,
	}
}

func fromRow(row []string) (models.ListingRecord, error) {
	if len(row) < len(Columns) {
		padded := make([]string, len(Columns))
		copy(padded, row)
		row = padded
	}

	r := models.ListingRecord{
		SourceSite: row[0],
		NaturalKey: row[1],
		Title:      row[2],
		Address:    row[4],
		URL:        row[5],
	}
	if r.SourceSite == "" || r.NaturalKey == "" {
		return r, fmt.Errorf("row without source_site or natural_key")
	}
	if row[3] != "" {
		p, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return r, fmt.Errorf("price %q: %w", row[3], err)
		}
		r.Price = &p
	}
	if row[6] != "" {
		t, err := time.Parse(time.RFC3339, row[6])
		if err != nil {
			return r, fmt.Errorf("scraped_at %q: %w", row[6], err)
		}
		r.ScrapedAt = t
	}
	if row[7] != "" {
		if err := json.Unmarshal([]byte(row[7]), &r.ExtraFields); err != nil {
			return r, fmt.Errorf("extra_fields: %w", err)
		}
	}
	return r, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && row[0] == Columns[0]
}

// Merge folds incoming into existing by (site, natural key). An incoming
// row replaces the stored one when it was scraped at the same time or
// later, unless only its scrape time differs, so a rerun over unchanged
// content rewrites the same bytes. Output is sorted by site then natural
// key.
func Merge(existing, incoming []models.ListingRecord) []models.ListingRecord {
	byKey := make(map[models.RecordKey]models.ListingRecord, len(existing)+len(incoming))
	for _, r := range existing {
		byKey[r.Key()] = r
	}
	for _, r := range incoming {
		if old, ok := byKey[r.Key()]; ok {
			if old.SameContent(r) || old.ScrapedAt.After(r.ScrapedAt) {
				continue
			}
		}
		byKey[r.Key()] = r
	}

	out := make([]models.ListingRecord, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceSite != out[j].SourceSite {
			return out[i].SourceSite < out[j].SourceSite
		}
		return out[i].NaturalKey < out[j].NaturalKey
	})
	return out
}
