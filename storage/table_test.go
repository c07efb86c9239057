package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"listing-scraper/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	firstRun  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	secondRun = time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
)

func ptr(v float64) *float64 { return &v }

func listing(site, key, title string, price *float64, at time.Time) models.ListingRecord {
	return models.ListingRecord{
		SourceSite: site,
		NaturalKey: key,
		Title:      title,
		Price:      price,
		Address:    "12 Main St, Toronto, ON",
		URL:        "https://" + site + ".example/" + key,
		ScrapedAt:  at,
	}
}

func TestRowRoundTrip(t *testing.T) {
	r := listing("zillow", "123", `Loft, "quoted"`, ptr(1850.5), firstRun)
	r.ExtraFields = map[string]string{"beds": "2", "baths": "1"}

	row := toRow(r)
	assert.Equal(t, `{"baths":"1","beds":"2"}`, row[7])
	assert.Equal(t, "1850.5", row[3])
	assert.Equal(t, "2024-03-01T12:00:00Z", row[6])

	back, err := fromRow(row)
	require.NoError(t, err)
	if diff := cmp.Diff(r, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRowRejectsMissingKey(t *testing.T) {
	_, err := fromRow([]string{"zillow", ""})
	assert.Error(t, err)

	_, err = fromRow([]string{"zillow", "1", "t", "abc"})
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	existing := []models.ListingRecord{
		listing("zillow", "2", "Old title", ptr(1000), firstRun),
		listing("airbnb", "9", "Cabin", nil, firstRun),
		listing("zillow", "1", "Same", ptr(900), firstRun),
	}
	incoming := []models.ListingRecord{
		listing("zillow", "2", "New title", ptr(1100), secondRun),
		listing("zillow", "1", "Same", ptr(900), secondRun),
		listing("apartments", "a", "Studio", ptr(700), secondRun),
	}

	got := Merge(existing, incoming)

	var keys []models.RecordKey
	for _, r := range got {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []models.RecordKey{
		{Site: "airbnb", NaturalKey: "9"},
		{Site: "apartments", NaturalKey: "a"},
		{Site: "zillow", NaturalKey: "1"},
		{Site: "zillow", NaturalKey: "2"},
	}, keys)

	// unchanged content keeps the stored scrape time
	assert.Equal(t, firstRun, got[2].ScrapedAt)
	assert.Equal(t, "New title", got[3].Title)
	assert.Equal(t, secondRun, got[3].ScrapedAt)
}

func TestStoreFor(t *testing.T) {
	assert.IsType(t, XLSXStore{}, StoreFor("out/listings.XLSX"))
	assert.IsType(t, CSVStore{}, StoreFor("out/listings.csv"))
	assert.IsType(t, CSVStore{}, StoreFor("listings"))
}

func TestCSVStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listings.csv")
	records := []models.ListingRecord{
		listing("airbnb", "1", "Cozy, bright\nroom", ptr(120), firstRun),
		listing("airbnb", "2", "Flat", nil, firstRun),
	}
	records[0].ExtraFields = map[string]string{"rating": "4.9"}

	require.NoError(t, CSVStore{}.Save(path, records))

	got, err := CSVStore{}.Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("csv round trip mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestCSVStoreWritesHeaderWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, CSVStore{}.Save(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "source_site,natural_key,title,price,address,url,scraped_at,extra_fields\n", string(data))
}

func TestCSVStoreLoadMissingFile(t *testing.T) {
	_, err := CSVStore{}.Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteAtomicKeepsOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.csv")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	err := writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("half a fi")); err != nil {
			return err
		}
		return errors.New("disk on fire")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
	assert.Equal(t, "listings.csv", entries[0].Name())
}

func TestWriteAtomicReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listings.csv")

	require.NoError(t, writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	}))
	require.NoError(t, writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("second"))
		return err
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm()&0o644)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestXLSXStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	records := []models.ListingRecord{
		listing("airbnb", "1", "Cabin", ptr(99), firstRun),
		listing("zillow", "7", "House", ptr(450000), firstRun),
		listing("zillow", "8", "Condo", nil, firstRun),
	}
	records[1].ExtraFields = map[string]string{"beds": "3"}

	require.NoError(t, XLSXStore{}.Save(path, records))

	got, err := XLSXStore{}.Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("xlsx round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestXLSXStoreEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	require.NoError(t, XLSXStore{}.Save(path, nil))

	got, err := XLSXStore{}.Load(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCSVRerunIsByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	store := CSVStore{}

	first := []models.ListingRecord{
		listing("zillow", "1", "A", ptr(1), firstRun),
		listing("zillow", "2", "B", ptr(2), firstRun),
	}
	require.NoError(t, store.Save(path, Merge(nil, first)))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	rerun := []models.ListingRecord{
		listing("zillow", "2", "B", ptr(2), secondRun),
		listing("zillow", "1", "A", ptr(1), secondRun),
	}
	existing, err := store.Load(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(path, Merge(existing, rerun)))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "rerun changed output:\n%s\n---\n%s", before, after)
}
