package scraper

import (
	"strings"

	"listing-scraper/models"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the trimmed text of the first selector that matches
// something non-empty inside s.
func FirstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return strings.Join(strings.Fields(t), " ")
		}
	}
	return ""
}

// FirstAttr is FirstText for an attribute.
func FirstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// NextLink resolves the href of the first enabled element matching one of
// selectors against the snapshot URL.
func NextLink(snap *models.DomSnapshot, selectors ...string) (models.PageCursor, bool) {
	doc, err := snap.Document()
	if err != nil {
		return models.PageCursor{}, false
	}
	for _, sel := range selectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if v, _ := el.Attr("aria-disabled"); v == "true" {
			return models.PageCursor{}, false
		}
		if el.HasClass("disabled") {
			return models.PageCursor{}, false
		}
		href, _ := el.Attr("href")
		if u := utils.AbsoluteURL(snap.URL, href); utils.ValidPageURL(u) {
			return models.URLCursor(u), true
		}
	}
	return models.PageCursor{}, false
}

// Slug lowercases s and joins its words with dashes, dropping punctuation
// that never appears in search paths.
func Slug(s string) string {
	s = strings.NewReplacer(",", "", "'", "", ".", "").Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), "-")
}
