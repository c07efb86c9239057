package zillow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

const SiteID = "zillow"

const baseURL = "https://www.zillow.com"

// PerimeterX challenge shown instead of results.
const pressAndHold = "Press & Hold to confirm you are"

var zpid = regexp.MustCompile(`(\d+)_zpid`)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) SiteID() string { return SiteID }

func (a *Adapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.URLCursor(job.StartURL), nil
	}
	if job.City == "" || job.State == "" {
		return models.PageCursor{}, fmt.Errorf("zillow: need start_url or city and state")
	}
	region, err := scraper.RegionCode(job.State)
	if err != nil {
		return models.PageCursor{}, fmt.Errorf("zillow: %w", err)
	}
	return models.URLCursor(fmt.Sprintf("%s/homes/%s-%s_rb/", baseURL, scraper.Slug(job.City), region)), nil
}

func (a *Adapter) ResolveURL(c models.PageCursor) (string, error) {
	return scraper.ResolveURLCursor(c)
}

func (a *Adapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{
		Selector: `[data-testid="property-card"]`,
		Idle:     2 * time.Second,
	}
}

func (a *Adapter) BlockDetector() scraper.BlockDetector {
	return scraper.DefaultBlockDetector().With(pressAndHold)
}

func (a *Adapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse zillow results: %w", err)
	}

	var records []models.RawRecord
	doc.Find(`[data-testid="property-card"]`).Each(func(_ int, card *goquery.Selection) {
		href := scraper.FirstAttr(card, "href", `a[data-test="property-card-link"]`, `a[href*="_zpid"]`)
		address := scraper.FirstText(card, `address`, `[data-test="property-card-addr"]`)

		rec := models.RawRecord{
			models.FieldURL:     utils.AbsoluteURL(snap.URL, href),
			models.FieldAddress: address,
			models.FieldTitle:   propertyName(address),
			models.FieldPrice:   scraper.FirstText(card, `[data-test="property-card-price"]`, `[class*="PropertyCardPrice"]`),
		}
		if m := zpid.FindStringSubmatch(href); m != nil {
			rec[models.FieldNaturalKey] = m[1]
		} else if id, ok := card.Closest(`[id^="zpid_"]`).Attr("id"); ok {
			rec[models.FieldNaturalKey] = strings.TrimPrefix(id, "zpid_")
		}

		card.Find(`[data-test="property-card-details"] li, ul[class*="StyledPropertyCardHomeDetails"] li`).Each(func(_ int, li *goquery.Selection) {
			text := strings.Join(strings.Fields(li.Text()), " ")
			label := strings.ToLower(scraper.FirstText(li, "abbr"))
			switch {
			case strings.HasPrefix(label, "bd") || strings.Contains(text, "bd"):
				rec["beds"] = trimUnit(text, "bds", "bd")
			case strings.HasPrefix(label, "ba") || strings.Contains(text, "ba"):
				rec["baths"] = trimUnit(text, "baths", "bath", "ba")
			case strings.Contains(text, "sqft"):
				rec["sqft"] = trimUnit(text, "sqft")
			}
		})
		records = append(records, rec)
	})
	return records, nil
}

// trimUnit strips the first matching unit, so list longer units first.
func trimUnit(text string, units ...string) string {
	for _, u := range units {
		if strings.HasSuffix(text, u) {
			return strings.TrimSpace(strings.TrimSuffix(text, u))
		}
	}
	return strings.TrimSpace(text)
}

// propertyName is the street part of an address.
func propertyName(address string) string {
	name, _, _ := strings.Cut(address, ",")
	return strings.TrimSpace(name)
}

func (a *Adapter) NextPageCursor(snap *models.DomSnapshot, _ models.PageCursor) (models.PageCursor, bool) {
	return scraper.NextLink(snap, `a[title="Next page"]`, `[data-testid="next-page"]`, `.pagination-next a`)
}
