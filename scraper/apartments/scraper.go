package apartments

import (
	"fmt"
	"time"

	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

const SiteID = "apartments"

const baseURL = "https://www.apartments.com"

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) SiteID() string { return SiteID }

// BuildStartURL follows the /apartments/{city}-{st}/ search layout.
func (a *Adapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.URLCursor(job.StartURL), nil
	}
	if job.City == "" || job.State == "" {
		return models.PageCursor{}, fmt.Errorf("apartments: need start_url or city and state")
	}
	region, err := scraper.RegionCode(job.State)
	if err != nil {
		return models.PageCursor{}, fmt.Errorf("apartments: %w", err)
	}
	return models.URLCursor(fmt.Sprintf("%s/apartments/%s-%s/", baseURL, scraper.Slug(job.City), region)), nil
}

func (a *Adapter) ResolveURL(c models.PageCursor) (string, error) {
	return scraper.ResolveURLCursor(c)
}

func (a *Adapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{Selector: ".placard", Idle: 3 * time.Second}
}

func (a *Adapter) BlockDetector() scraper.BlockDetector {
	return scraper.DefaultBlockDetector().With("Access Denied")
}

func (a *Adapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse apartments results: %w", err)
	}

	var records []models.RawRecord
	doc.Find("article.placard, .placard[data-listingid]").Each(func(_ int, card *goquery.Selection) {
		link, _ := card.Attr("data-url")
		if link == "" {
			link = scraper.FirstAttr(card, "href", "a.property-link", `a[data-tracking-label="property-title"]`, "a.property-title")
		}
		id, _ := card.Attr("data-listingid")

		records = append(records, models.RawRecord{
			models.FieldNaturalKey: id,
			models.FieldURL:        utils.AbsoluteURL(snap.URL, link),
			models.FieldTitle:      scraper.FirstText(card, ".property-title", `[data-tracking-label="property-title"]`, ".js-placardTitle"),
			models.FieldAddress:    scraper.FirstText(card, ".property-address", `[itemprop="address"]`, ".location"),
			models.FieldPrice:      scraper.FirstText(card, ".property-pricing", ".price-range", ".property-rents"),
			"beds":                 scraper.FirstText(card, ".property-beds", ".bed-range"),
			"phone":                scraper.FirstText(card, ".phone-link span", ".property-actions .phone-link"),
		})
	})
	return records, nil
}

func (a *Adapter) NextPageCursor(snap *models.DomSnapshot, _ models.PageCursor) (models.PageCursor, bool) {
	return scraper.NextLink(snap, "#paging a.next", ".paging a.next", `a[aria-label="Next Page"]`)
}
