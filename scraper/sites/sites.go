// Package sites maps site ids to their adapters.
package sites

import (
	"fmt"
	"sort"

	"listing-scraper/scraper"
	"listing-scraper/scraper/airbnb"
	"listing-scraper/scraper/apartments"
	"listing-scraper/scraper/harrington"
	"listing-scraper/scraper/rentfaster"
	"listing-scraper/scraper/zillow"
)

var registry = map[string]func() scraper.Adapter{
	airbnb.SiteID:     func() scraper.Adapter { return airbnb.New() },
	zillow.SiteID:     func() scraper.Adapter { return zillow.New() },
	apartments.SiteID: func() scraper.Adapter { return apartments.New() },
	rentfaster.SiteID: func() scraper.Adapter { return rentfaster.New() },
	harrington.SiteID: func() scraper.Adapter { return harrington.New() },
}

// Lookup satisfies scraper.AdapterLookup.
func Lookup(siteID string) (scraper.Adapter, error) {
	newAdapter, ok := registry[siteID]
	if !ok {
		return nil, fmt.Errorf("unknown site %q (known: %v)", siteID, IDs())
	}
	return newAdapter(), nil
}

func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
