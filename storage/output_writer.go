package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"listing-scraper/models"

	"go.uber.org/zap"
)

// Mirror receives a job's records after they were committed to the output
// file. Mirror failures are logged and never fail the commit.
type Mirror interface {
	Mirror(ctx context.Context, path string, records []models.ListingRecord) error
}

// OutputWriter commits each job's records to its tabular output file.
// Commits to the same path are serialized; a path already written during
// this run is always merged so concurrent jobs sharing a file do not
// overwrite each other.
type OutputWriter struct {
	appendMode bool
	logger     *zap.Logger
	mirrors    []Mirror
	storeFor   func(path string) TabularStore

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	written map[string]bool
}

func NewOutputWriter(appendMode bool, logger *zap.Logger, mirrors ...Mirror) *OutputWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputWriter{
		appendMode: appendMode,
		logger:     logger,
		mirrors:    mirrors,
		storeFor:   StoreFor,
		locks:      make(map[string]*sync.Mutex),
		written:    make(map[string]bool),
	}
}

func (w *OutputWriter) lockFor(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

func (w *OutputWriter) seen(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written[path]
}

// Commit merges records into job.OutputPath and returns how many of them
// were written. Failures come back as *models.OutputError.
func (w *OutputWriter) Commit(ctx context.Context, job models.ScrapeJob, records []models.ListingRecord) (int, error) {
	path := job.OutputPath
	if path == "" {
		return 0, models.WriteFailure(path, errors.New("no output path configured"))
	}

	lock := w.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	store := w.storeFor(path)

	var existing []models.ListingRecord
	if w.appendMode || w.seen(path) {
		loaded, err := store.Load(path)
		switch {
		case err == nil:
			existing = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return 0, models.WriteFailure(path, fmt.Errorf("load existing output: %w", err))
		}
	}

	merged := Merge(existing, records)
	if err := store.Save(path, merged); err != nil {
		return 0, models.WriteFailure(path, err)
	}

	w.mu.Lock()
	w.written[path] = true
	w.mu.Unlock()

	w.logger.Info("output_committed",
		zap.String("job_id", job.JobID),
		zap.String("site", job.SiteID),
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("rows", len(merged)),
	)

	for _, m := range w.mirrors {
		if err := m.Mirror(ctx, path, records); err != nil {
			w.logger.Warn("mirror failed", zap.String("path", path), zap.Error(err))
		}
	}
	return len(records), nil
}
