package services

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"listing-scraper/models"
	"listing-scraper/utils"

	"go.uber.org/zap"
)

// Stats counts what a pipeline saw. MissingFields tracks optional columns
// that were empty on accepted records.
type Stats struct {
	Seen          int
	Accepted      int
	Malformed     int
	Replaced      int
	MissingFields map[string]int
}

// Pipeline normalizes raw records and deduplicates them by (site, natural
// key). A later record with the same key replaces the earlier one but keeps
// its position.
type Pipeline struct {
	logger *zap.Logger

	mu      sync.Mutex
	order   []models.RecordKey
	records map[models.RecordKey]models.ListingRecord
	stats   Stats
}

func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:  logger,
		records: make(map[models.RecordKey]models.ListingRecord),
		stats:   Stats{MissingFields: make(map[string]int)},
	}
}

// Ingest normalizes one page worth of raw records and returns how many
// were accepted. Malformed ones are counted and skipped.
func (p *Pipeline) Ingest(site string, raws []models.RawRecord, scrapedAt time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	accepted := 0
	for _, raw := range raws {
		p.stats.Seen++
		rec, err := Normalize(site, raw, scrapedAt)
		if err != nil {
			p.stats.Malformed++
			p.logger.Warn("malformed record",
				zap.String("site", site),
				zap.String("reason", err.Reason),
				zap.String("url", raw[models.FieldURL]),
			)
			continue
		}
		p.countMissing(rec)

		key := rec.Key()
		if _, dup := p.records[key]; dup {
			p.stats.Replaced++
		} else {
			p.order = append(p.order, key)
		}
		p.records[key] = rec
		accepted++
	}
	p.stats.Accepted += accepted
	return accepted
}

func (p *Pipeline) countMissing(rec models.ListingRecord) {
	if rec.Title == "" {
		p.stats.MissingFields[models.FieldTitle]++
	}
	if rec.Price == nil {
		p.stats.MissingFields[models.FieldPrice]++
	}
	if rec.Address == "" {
		p.stats.MissingFields[models.FieldAddress]++
	}
}

// Records returns the deduplicated records in first-seen order.
func (p *Pipeline) Records() []models.ListingRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.ListingRecord, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, p.records[k])
	}
	return out
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.MissingFields = make(map[string]int, len(p.stats.MissingFields))
	for k, v := range p.stats.MissingFields {
		s.MissingFields[k] = v
	}
	return s
}

// Normalize turns one raw record into a ListingRecord. Records without a
// usable URL or natural key are malformed; the natural key falls back to
// the normalized URL.
func Normalize(site string, raw models.RawRecord, scrapedAt time.Time) (models.ListingRecord, *models.ExtractionError) {
	url := utils.NormalizeURL(strings.TrimSpace(raw[models.FieldURL]))
	if url == "" {
		return models.ListingRecord{}, models.Malformed(site, "missing url")
	}

	key := cleanText(raw[models.FieldNaturalKey])
	if key == "" {
		key = url
	}

	rawPrice := cleanText(raw[models.FieldPrice])
	rec := models.ListingRecord{
		SourceSite: site,
		NaturalKey: key,
		Title:      cleanText(raw[models.FieldTitle]),
		Price:      ParsePrice(rawPrice),
		Address:    cleanText(raw[models.FieldAddress]),
		URL:        url,
		ScrapedAt:  scrapedAt.UTC().Truncate(time.Second),
	}

	for k, v := range raw {
		switch k {
		case models.FieldNaturalKey, models.FieldTitle, models.FieldPrice, models.FieldAddress, models.FieldURL:
			continue
		}
		if v = cleanText(v); v != "" {
			if rec.ExtraFields == nil {
				rec.ExtraFields = make(map[string]string)
			}
			rec.ExtraFields[k] = v
		}
	}
	if rec.Price == nil && rawPrice != "" {
		if rec.ExtraFields == nil {
			rec.ExtraFields = make(map[string]string)
		}
		rec.ExtraFields["raw_price"] = rawPrice
	}
	return rec, nil
}

var (
	currencyAmount = regexp.MustCompile(`(?:C\$|CA\$|US\$|\$|€|£|RM|CAD|USD)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	plainAmount    = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
)

// ParsePrice pulls the first amount out of a display price. Ranges yield
// their lower bound. Text without digits ("Call for Rent") yields nil.
func ParsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	amount := ""
	if m := currencyAmount.FindStringSubmatch(raw); m != nil {
		amount = m[1]
	} else {
		amount = plainAmount.FindString(raw)
	}
	if amount == "" {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
