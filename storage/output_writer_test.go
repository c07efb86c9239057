package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"listing-scraper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMirror struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *recordingMirror) Mirror(_ context.Context, path string, _ []models.ListingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	return m.err
}

func job(id, site, path string) models.ScrapeJob {
	return models.ScrapeJob{JobID: id, SiteID: site, OutputPath: path}
}

func TestOutputWriterMergesJobsSharingAPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all.csv")
	w := NewOutputWriter(false, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, site := range []string{"airbnb", "zillow", "apartments"} {
		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			n, err := w.Commit(ctx, job(site+"-job", site, path), []models.ListingRecord{
				listing(site, "1", "one", nil, firstRun),
				listing(site, "2", "two", nil, firstRun),
			})
			assert.NoError(t, err)
			assert.Equal(t, 2, n)
		}(site)
	}
	wg.Wait()

	got, err := CSVStore{}.Load(path)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestOutputWriterReplacesFileWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, CSVStore{}.Save(path, []models.ListingRecord{
		listing("zillow", "old", "stale", nil, firstRun),
	}))

	w := NewOutputWriter(false, nil)
	_, err := w.Commit(context.Background(), job("j", "zillow", path), []models.ListingRecord{
		listing("zillow", "new", "fresh", nil, secondRun),
	})
	require.NoError(t, err)

	got, err := CSVStore{}.Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].NaturalKey)
}

func TestOutputWriterAppendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, CSVStore{}.Save(path, []models.ListingRecord{
		listing("zillow", "old", "kept", nil, firstRun),
	}))

	w := NewOutputWriter(true, nil)
	_, err := w.Commit(context.Background(), job("j", "zillow", path), []models.ListingRecord{
		listing("zillow", "new", "fresh", nil, secondRun),
	})
	require.NoError(t, err)

	got, err := CSVStore{}.Load(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOutputWriterAppendToMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.xlsx")
	w := NewOutputWriter(true, nil)

	n, err := w.Commit(context.Background(), job("j", "airbnb", path), []models.ListingRecord{
		listing("airbnb", "1", "Cabin", ptr(80), firstRun),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOutputWriterFailures(t *testing.T) {
	w := NewOutputWriter(false, nil)

	_, err := w.Commit(context.Background(), job("j", "zillow", ""), nil)
	var oe *models.OutputError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, models.KindWriteFailure, oe.Kind)

	// a regular file where the output directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	_, err = w.Commit(context.Background(), job("j", "zillow", filepath.Join(blocker, "out.csv")), nil)
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, filepath.Join(blocker, "out.csv"), oe.Path)
}

func TestOutputWriterMirrorErrorsDoNotFailCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	ok := &recordingMirror{}
	broken := &recordingMirror{err: errors.New("bucket gone")}
	w := NewOutputWriter(false, nil, broken, ok)

	n, err := w.Commit(context.Background(), job("j", "zillow", path), []models.ListingRecord{
		listing("zillow", "1", "one", nil, firstRun),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{path}, ok.paths)
	assert.Equal(t, []string{path}, broken.paths)
}

func TestOutputWriterKeepsNewestScrapeAcrossJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.csv")
	w := NewOutputWriter(false, nil)
	ctx := context.Background()

	late := firstRun.Add(50 * time.Minute)
	early := firstRun.Add(10 * time.Minute)

	// the job that finished paging first saw the listing last
	_, err := w.Commit(ctx, job("toronto", "zillow", path), []models.ListingRecord{
		listing("zillow", "123", "Loft", ptr(1200), late),
	})
	require.NoError(t, err)
	_, err = w.Commit(ctx, job("ottawa", "zillow", path), []models.ListingRecord{
		listing("zillow", "123", "Loft", ptr(1000), early),
	})
	require.NoError(t, err)

	got, err := CSVStore{}.Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1200.0, *got[0].Price)
	assert.True(t, late.Equal(got[0].ScrapedAt))
}
