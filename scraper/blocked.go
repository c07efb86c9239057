package scraper

import (
	"html"
	"net/http"
	"slices"
	"strings"

	"listing-scraper/models"
)

// BlockDetector decides whether a rendered page is an anti-bot wall. Each
// adapter supplies its own, usually DefaultBlockDetector plus site markers.
type BlockDetector struct {
	Statuses []int
	// Markers are matched case-insensitively against the page HTML with
	// entities decoded.
	Markers []string
}

func DefaultBlockDetector() BlockDetector {
	return BlockDetector{
		Statuses: []int{http.StatusForbidden, http.StatusTooManyRequests},
		Markers:  []string{"verify you are human"},
	}
}

// With returns a copy of d that also matches markers.
func (d BlockDetector) With(markers ...string) BlockDetector {
	return BlockDetector{
		Statuses: slices.Clone(d.Statuses),
		Markers:  append(slices.Clone(d.Markers), markers...),
	}
}

func (d BlockDetector) Matches(snap *models.DomSnapshot) bool {
	if snap == nil {
		return false
	}
	if slices.Contains(d.Statuses, snap.Status) {
		return true
	}
	if len(d.Markers) == 0 {
		return false
	}
	page := strings.ToLower(html.UnescapeString(snap.HTML))
	for _, m := range d.Markers {
		if m != "" && strings.Contains(page, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
