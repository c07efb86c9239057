package rentfaster

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"

	"github.com/PuerkitoBio/goquery"
)

const SiteID = "rentfaster"

const baseURL = "https://www.rentfaster.ca"

// Adapter pages through results with a cur_page index rather than links.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) SiteID() string { return SiteID }

func (a *Adapter) BuildStartURL(job models.ScrapeJob) (models.PageCursor, error) {
	if job.StartURL != "" {
		return models.PageIndexCursor(job.StartURL, 0), nil
	}
	if job.City == "" || job.State == "" {
		return models.PageCursor{}, fmt.Errorf("rentfaster: need start_url or city and province")
	}
	region, err := scraper.RegionCode(job.State)
	if err != nil {
		return models.PageCursor{}, fmt.Errorf("rentfaster: %w", err)
	}
	return models.PageIndexCursor(fmt.Sprintf("%s/%s/%s/", baseURL, region, scraper.Slug(job.City)), 0), nil
}

// ResolveURL adds cur_page for every page after the first.
func (a *Adapter) ResolveURL(c models.PageCursor) (string, error) {
	switch c.Kind {
	case models.CursorURL:
		return scraper.ResolveURLCursor(c)
	case models.CursorPageIndex:
	default:
		return "", fmt.Errorf("rentfaster: unsupported cursor kind %s", c.Kind)
	}
	if c.Index < 0 {
		return "", fmt.Errorf("rentfaster: negative page %d", c.Index)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("rentfaster: %w", err)
	}
	q := u.Query()
	if c.Index == 0 {
		q.Del("cur_page")
	} else {
		q.Set("cur_page", strconv.Itoa(c.Index))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Adapter) WaitStrategy() models.WaitStrategy {
	return models.WaitStrategy{Selector: ".listing-item", Idle: 5 * time.Second}
}

func (a *Adapter) BlockDetector() scraper.BlockDetector {
	return scraper.DefaultBlockDetector()
}

func (a *Adapter) ExtractRecords(snap *models.DomSnapshot) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse rentfaster results: %w", err)
	}

	var records []models.RawRecord
	doc.Find(".listing-item").Each(func(_ int, item *goquery.Selection) {
		id, _ := item.Attr("data-id")
		href, ok := item.Attr("href")
		if !ok {
			href = scraper.FirstAttr(item, "href", "a")
		}
		records = append(records, models.RawRecord{
			models.FieldNaturalKey: id,
			models.FieldURL:        utils.AbsoluteURL(snap.URL, href),
			models.FieldTitle:      scraper.FirstText(item, ".title", "h2", "h3"),
			models.FieldAddress:    scraper.FirstText(item, ".address", ".dnt.is-size-7"),
			models.FieldPrice:      scraper.FirstText(item, ".price", `[title="Rent"]`),
			"bed_type":             scraper.FirstText(item, ".beds", ".card-header-title"),
		})
	})
	return records, nil
}

// NextPageCursor advances the index while the page shows results and a
// pager that has not reached its end.
func (a *Adapter) NextPageCursor(snap *models.DomSnapshot, current models.PageCursor) (models.PageCursor, bool) {
	doc, err := snap.Document()
	if err != nil || doc.Find(".listing-item").Length() == 0 {
		return models.PageCursor{}, false
	}
	next := doc.Find(`.pagination a.next, .pagination-next, a[rel="next"]`).First()
	if next.Length() == 0 || next.HasClass("disabled") || next.HasClass("is-disabled") {
		return models.PageCursor{}, false
	}
	if v, _ := next.Attr("disabled"); v != "" {
		return models.PageCursor{}, false
	}
	base := current.URL
	if current.Kind != models.CursorPageIndex {
		base = snap.RequestedURL
	}
	return models.PageIndexCursor(base, current.Index+1), true
}

var rentAmount = regexp.MustCompile(`\$\s*([\d,]+)`)

func (a *Adapter) DetailURL(rec models.RawRecord) string {
	return rec[models.FieldURL]
}

func (a *Adapter) DetailWait() models.WaitStrategy {
	return models.WaitStrategy{Selector: ".level-item h2", Idle: 2 * time.Second}
}

// EnrichRecord turns one listing into a record per unit type shown on its
// page. A page without unit cards keeps a single record.
func (a *Adapter) EnrichRecord(snap *models.DomSnapshot, rec models.RawRecord) ([]models.RawRecord, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("parse rentfaster listing: %w", err)
	}

	base := maps.Clone(rec)
	if name := propertyName(doc); name != "" {
		base[models.FieldTitle] = name
	}
	doc.Find(".has-background-grey-lightest .dnt.is-size-7, .dnt.is-size-7").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.Join(strings.Fields(s.Text()), " "); len(t) > 10 {
			base[models.FieldAddress] = t
			return false
		}
		return true
	})

	units := doc.Find(".card.block")
	if units.Length() == 0 {
		return []models.RawRecord{base}, nil
	}

	out := make([]models.RawRecord, 0, units.Length())
	units.Each(func(i int, card *goquery.Selection) {
		unit := maps.Clone(base)
		unit[models.FieldNaturalKey] = fmt.Sprintf("%s-u%d", rec[models.FieldNaturalKey], i+1)
		unit["bed_type"] = bedType(scraper.FirstText(card, ".card-header-title"))
		delete(unit, models.FieldPrice)
		if m := rentAmount.FindStringSubmatch(card.Find(`li[title="Rent"]`).First().Text()); m != nil {
			unit[models.FieldPrice] = "$" + m[1]
		}
		out = append(out, unit)
	})
	return out, nil
}

func propertyName(doc *goquery.Document) string {
	for _, sel := range []string{".level-item h2.title.dnt", ".level-item h2", ".title.dnt"} {
		t := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if len(t) > 3 && !strings.Contains(strings.ToLower(t), "the apartment name") {
			return t
		}
	}
	return ""
}

func bedType(raw string) string {
	l := strings.ToLower(raw)
	switch {
	case strings.Contains(l, "1 bed"):
		return "1 Bed"
	case strings.Contains(l, "2 bed"):
		return "2 Bed"
	case strings.Contains(l, "3 bed"):
		return "3 Bed"
	case strings.Contains(l, "studio"), strings.Contains(l, "bachelor"):
		return "Studio"
	}
	return raw
}
