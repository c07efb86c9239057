package scraper

import (
	"fmt"

	"listing-scraper/models"
)

// Adapter holds everything site specific. The controller never looks at a
// page itself; it only calls these hooks.
type Adapter interface {
	SiteID() string
	BuildStartURL(job models.ScrapeJob) (models.PageCursor, error)
	// ResolveURL turns a cursor into the address to render. An error is a
	// navigation failure.
	ResolveURL(cursor models.PageCursor) (string, error)
	WaitStrategy() models.WaitStrategy
	BlockDetector() BlockDetector
	// ExtractRecords must not fail on a page with no results; it returns an
	// empty slice instead.
	ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error)
	// NextPageCursor reports false when snap is the last page.
	NextPageCursor(snap *models.DomSnapshot, current models.PageCursor) (models.PageCursor, bool)
}

// ResolveURLCursor is the ResolveURL of adapters that only paginate by
// following links.
func ResolveURLCursor(c models.PageCursor) (string, error) {
	if c.Kind != models.CursorURL {
		return "", fmt.Errorf("unsupported cursor kind %s", c.Kind)
	}
	if c.URL == "" {
		return "", fmt.Errorf("empty cursor")
	}
	return c.URL, nil
}

// DetailEnricher is implemented by adapters whose result cards lack fields
// that only the listing's own page shows. The controller renders every
// DetailURL through the same renderer and retry rules as result pages.
type DetailEnricher interface {
	// DetailURL returns "" when rec needs no detail page.
	DetailURL(rec models.RawRecord) string
	DetailWait() models.WaitStrategy
	// EnrichRecord returns what the detail page yields for rec, possibly
	// several records (one per unit type).
	EnrichRecord(snap *models.DomSnapshot, rec models.RawRecord) ([]models.RawRecord, error)
}
