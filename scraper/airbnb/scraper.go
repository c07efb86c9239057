package airbnb

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

const SiteID = "airbnb"

const baseURL = "https://www.airbnb.com"

var (
	roomID     = regexp.MustCompile(`/rooms/(\d+)`)
	ratingText = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)`)
)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) SiteID() string { return SiteID }

// BuildStartURL uses the search page for City--State when no explicit
// start URL is configured.
func (a *Adapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.URLCursor(job.StartURL), nil
	}
	if job.City == "" {
		return models.PageCursor{}, fmt.Errorf("airbnb: need start_url or city")
	}
	place := job.City
	if job.State != "" {
		place += "--" + job.State
	}
	place = strings.ReplaceAll(place, " ", "-")
	return models.URLCursor(baseURL + "/s/" + url.PathEscape(place) + "/homes"), nil
}

func (a *Adapter) ResolveURL(c models.PageCursor) (string, error) {
	return scraper.ResolveURLCursor(c)
}

func (a *Adapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{
		Selector: `[data-testid="listing-card-title"]`,
		Idle:     3 * time.Second,
	}
}

func (a *Adapter) BlockDetector() scraper.BlockDetector {
	return scraper.DefaultBlockDetector()
}

func (a *Adapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse airbnb results: %w", err)
	}

	var records []models.RawRecord
	doc.Find(`[data-testid="listing-card-title"]`).Each(func(_ int, title *goquery.Selection) {
		card := title.Closest(`div[itemprop="itemListElement"]`)
		if card.Length() == 0 {
			card = title.Parent()
		}

		href := scraper.FirstAttr(card, "href", `a[href*="/rooms/"]`)
		link := utils.AbsoluteURL(snap.URL, href)
		if link != "" {
			// Search params only carry dates and tracking.
			if u, err := url.Parse(link); err == nil {
				u.RawQuery = ""
				link = u.String()
			}
		}

		rec := models.RawRecord{
			models.FieldTitle:   strings.TrimSpace(title.Text()),
			models.FieldURL:     link,
			models.FieldPrice:   cardPrice(card),
			models.FieldAddress: scraper.FirstText(card, `[data-testid="listing-card-subtitle"]`),
			"rating":            parseRating(scraper.FirstAttr(card, "aria-label", `span[aria-label*="out of 5"]`)),
		}
		if m := roomID.FindStringSubmatch(href); m != nil {
			rec[models.FieldNaturalKey] = m[1]
		}
		records = append(records, rec)
	})
	return records, nil
}

func cardPrice(card *goquery.Selection) string {
	if p := scraper.FirstText(card, `[data-testid="price-availability-row"] span[aria-hidden="true"]`, `span._1y74zjx`); p != "" {
		return p
	}
	// Screen reader labels read like "$1,234 for 5 nights".
	var price string
	card.Find(`[aria-label]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		if strings.Contains(label, "$") {
			price = label
			return false
		}
		return true
	})
	return price
}

func parseRating(raw string) string {
	m := ratingText.FindString(raw)
	if m == "" {
		return ""
	}
	return m
}

func (a *Adapter) NextPageCursor(snap *models.DomSnapshot, _ models.PageCursor) (models.PageCursor, bool) {
	return scraper.NextLink(snap, `a[aria-label="Next"]`, `a[aria-label*="Next"]`, `a[aria-label*="next"]`)
}
