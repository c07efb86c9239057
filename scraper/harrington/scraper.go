package harrington

import (
	"fmt"
	"maps"
	"net/url"
	"path"
	"strings"
	"time"

	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

const SiteID = "harrington"

const baseURL = "https://harringtonhousing.com"

// Adapter covers Harrington Housing's coliving pages. Every listing of a
// city sits on one infinite-scroll page, so there is never a next page.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) SiteID() string { return SiteID }

func (a *Adapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.URLCursor(job.StartURL), nil
	}
	if job.City == "" {
		return models.PageCursor{}, fmt.Errorf("harrington: need start_url or city")
	}
	return models.URLCursor(fmt.Sprintf("%s/%s/coliving-shared-rooms-on-rent", baseURL, scraper.Slug(job.City))), nil
}

func (a *Adapter) ResolveURL(c models.PageCursor) (string, error) {
	return scraper.ResolveURLCursor(c)
}

func (a *Adapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{
		Selector:       "div.inner-card",
		ScrollToBottom: true,
		Idle:           2 * time.Second,
	}
}

func (a *Adapter) BlockDetector() scraper.BlockDetector {
	return scraper.DefaultBlockDetector()
}

func (a *Adapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse harrington results: %w", err)
	}

	var records []models.RawRecord
	doc.Find("div.inner-card").Each(func(_ int, card *goquery.Selection) {
		link := utils.AbsoluteURL(snap.URL, scraper.FirstAttr(card, "href", "a"))
		records = append(records, models.RawRecord{
			models.FieldNaturalKey: listingSlug(link),
			models.FieldURL:        link,
			models.FieldTitle:      scraper.FirstText(card, "p.font-16.dark", "h3", "h2"),
			models.FieldAddress:    scraper.FirstText(card, "div.name-detail > p:last-of-type", "div.address-detail p"),
			models.FieldPrice:      scraper.FirstText(card, "div.price h6"),
			"billing_cycle":        billingCycle(scraper.FirstText(card, "div.price p.price-label")),
		})
	})
	return records, nil
}

func (a *Adapter) NextPageCursor(*models.DomSnapshot, models.PageCursor) (models.PageCursor, bool) {
	return models.PageCursor{}, false
}

func listingSlug(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}

func billingCycle(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "month"):
		return "monthly"
	case strings.Contains(l, "week"):
		return "weekly"
	case strings.Contains(l, "year"):
		return "annually"
	}
	return l
}

// DetailURL opens every listing: cards only carry a teaser.
func (a *Adapter) DetailURL(rec models.RawRecord) string {
	return rec[models.FieldURL]
}

func (a *Adapter) DetailWait() models.WaitStrategy {
	return models.WaitStrategy{Selector: "div.name-detail", Idle: 2 * time.Second}
}

// EnrichRecord overlays the detail page's title, price, address, room
// counts and amenities on the card record.
func (a *Adapter) EnrichRecord(snap *models.DomSnapshot, rec models.RawRecord) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse harrington listing: %w", err)
	}

	out := maps.Clone(rec)
	set := func(field, value string) {
		if value != "" {
			out[field] = value
		}
	}
	set(models.FieldTitle, scraper.FirstText(doc.Selection, "p.font-16.dark", "h1"))
	set(models.FieldPrice, scraper.FirstText(doc.Selection, "div.price h6"))
	set("billing_cycle", billingCycle(scraper.FirstText(doc.Selection, "div.price p.price-label")))
	set(models.FieldAddress, detailAddress(doc))

	icons := doc.Find("div.icon-box p.dark")
	if icons.Length() >= 2 {
		set("bedrooms", strings.TrimSpace(icons.Eq(0).Text()))
		set("bathrooms", strings.TrimSpace(icons.Eq(1).Text()))
	}

	var amenities []string
	doc.Find(`div[class~="md:w-1/2"] p.dark`).Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			amenities = append(amenities, t)
		}
	})
	set("amenities", strings.Join(amenities, ", "))
	return []models.RawRecord{out}, nil
}

// detailAddress takes the first candidate long enough to be a street
// address rather than a label.
func detailAddress(doc *goquery.Document) string {
	for _, sel := range []string{"div.name-detail > p:last-of-type", "div.address-detail p", "div.detail-info p", "div.name-detail p:nth-of-type(2)"} {
		if t := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); len(t) > 10 {
			return t
		}
	}
	return ""
}
