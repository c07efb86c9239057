package models

import (
	"maps"
	"time"
)

// Raw field names produced by site adapters. Anything else ends up in
// ListingRecord.ExtraFields.
const (
	FieldNaturalKey = "natural_key"
	FieldTitle      = "title"
	FieldPrice      = "price"
	FieldAddress    = "address"
	FieldURL        = "url"
)

// RawRecord is what an adapter pulls out of a snapshot before any cleaning.
// Values may be empty or malformed.
type RawRecord map[string]string

type RecordKey struct {
	Site       string
	NaturalKey string
}

type ListingRecord struct {
	SourceSite  string
	NaturalKey  string
	Title       string
	Price       *float64
	Address     string
	URL         string
	ScrapedAt   time.Time
	ExtraFields map[string]string
}

func (l ListingRecord) Key() RecordKey {
	return RecordKey{Site: l.SourceSite, NaturalKey: l.NaturalKey}
}

// SameContent compares every column except ScrapedAt.
func (l ListingRecord) SameContent(o ListingRecord) bool {
	if l.SourceSite != o.SourceSite || l.NaturalKey != o.NaturalKey ||
		l.Title != o.Title || l.Address != o.Address || l.URL != o.URL {
		return false
	}
	if (l.Price == nil) != (o.Price == nil) {
		return false
	}
	if l.Price != nil && *l.Price != *o.Price {
		return false
	}
	if len(l.ExtraFields) == 0 && len(o.ExtraFields) == 0 {
		return true
	}
	return maps.Equal(l.ExtraFields, o.ExtraFields)
}
