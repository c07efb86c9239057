package models

import "time"

// ScrapeJob is one site's run configuration. It is never modified once the
// orchestrator has started the job.
type ScrapeJob struct {
	JobID    string
	SiteID   string
	StartURL string

	// City and State seed the start URL when StartURL is empty.
	City  string
	State string

	// MaxPages of 0 means no limit.
	MaxPages         int
	ConcurrencyLimit int
	Timeout          time.Duration
	OutputPath       string

	// SkipDetails keeps result-card records as they are, for adapters that
	// would otherwise open each listing's own page.
	SkipDetails bool
}

func (j ScrapeJob) PageLimitReached(pagesVisited int) bool {
	return j.MaxPages > 0 && pagesVisited >= j.MaxPages
}
