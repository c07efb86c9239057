package scraper

import (
	"context"
	"strings"
	"time"

	"listing-scraper/models"

	"github.com/stretchr/testify/mock"
)

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, req RenderRequest) (*models.DomSnapshot, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, RenderRequest) *models.DomSnapshot); ok {
		return fn(ctx, req), args.Error(1)
	}
	snap, _ := args.Get(0).(*models.DomSnapshot)
	return snap, args.Error(1)
}

func (m *mockRenderer) Close() error {
	return nil
}

func forURL(url string) interface{} {
	return mock.MatchedBy(func(r RenderRequest) bool { return r.URL == url })
}

func page(url string) *models.DomSnapshot {
	return models.NewSnapshot(url, url, 200, "<html><body></body></html>")
}

func renderErr(kind models.ErrorKind, url string) error {
	return models.NewRenderError(kind, url, nil)
}

// fakeAdapter serves records and next links from maps keyed by page URL.
type fakeAdapter struct {
	site    string
	start   string
	records map[string][]models.RawRecord
	next    map[string]string
	failOn  map[string]bool
	panicOn string
}

func (a *fakeAdapter) SiteID() string { return a.site }

func (a *fakeAdapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.URLCursor(job.StartURL), nil
	}
	return models.URLCursor(a.start), nil
}

func (a *fakeAdapter) ResolveURL(c models.PageCursor) (string, error) {
	return ResolveURLCursor(c)
}

func (a *fakeAdapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{Selector: ".card"}
}

func (a *fakeAdapter) BlockDetector() BlockDetector {
	return DefaultBlockDetector()
}

func (a *fakeAdapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	if a.panicOn != "" && strings.HasPrefix(snap.RequestedURL, a.panicOn) {
		panic("selector exploded")
	}
	if a.failOn[snap.RequestedURL] {
		return nil, models.Malformed(a.site, "layout changed")
	}
	return a.records[snap.RequestedURL], nil
}

func (a *fakeAdapter) NextPageCursor(snap *models.DomSnapshot, _ models.PageCursor) (models.PageCursor, bool) {
	n, ok := a.next[snap.RequestedURL]
	if !ok {
		return models.PageCursor{}, false
	}
	return models.URLCursor(n), true
}

func rec(key, title, price string) models.RawRecord {
	return models.RawRecord{
		models.FieldNaturalKey: key,
		models.FieldTitle:      title,
		models.FieldPrice:      price,
		models.FieldURL:        "https://example.com/listing/" + key,
	}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func noDelay(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}
