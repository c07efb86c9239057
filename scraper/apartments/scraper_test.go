package apartments

import (
	"testing"

	"listing-scraper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<article class="placard" data-listingid="k3x9" data-url="https://www.apartments.com/the-maple-austin-tx/k3x9/">
  <div class="property-title">The Maple</div>
  <div class="property-address">1200 Maple Ave, Austin, TX 78701</div>
  <p class="property-pricing">$1,350 - $2,100</p>
  <p class="property-beds">Studio - 2 Beds</p>
</article>
<article class="placard" data-listingid="q7r2">
  <a class="property-link" href="/oak-lofts-austin-tx/q7r2/"></a>
  <div class="property-title">Oak Lofts</div>
  <p class="property-pricing">Call for Rent</p>
</article>
<nav id="paging"><a class="next" href="https://www.apartments.com/apartments/austin-tx/2/">Next</a></nav>
</body></html>`

func TestExtractRecords(t *testing.T) {
	snap := models.NewSnapshot("https://www.apartments.com/apartments/austin-tx/", "", 200, resultsPage)

	records, err := New().ExtractRecords(snap)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.RawRecord{
		models.FieldNaturalKey: "k3x9",
		models.FieldURL:        "https://www.apartments.com/the-maple-austin-tx/k3x9/",
		models.FieldTitle:      "The Maple",
		models.FieldAddress:    "1200 Maple Ave, Austin, TX 78701",
		models.FieldPrice:      "$1,350 - $2,100",
		"beds":                 "Studio - 2 Beds",
		"phone":                "",
	}, records[0])

	assert.Equal(t, "https://www.apartments.com/oak-lofts-austin-tx/q7r2/", records[1][models.FieldURL])
	assert.Equal(t, "Call for Rent", records[1][models.FieldPrice])
}

func TestNextPageCursor(t *testing.T) {
	snap := models.NewSnapshot("https://www.apartments.com/apartments/austin-tx/", "", 200, resultsPage)
	next, ok := New().NextPageCursor(snap, models.URLCursor(snap.URL))
	require.True(t, ok)
	assert.Equal(t, "https://www.apartments.com/apartments/austin-tx/2/", next.URL)
}

func TestBuildStartURL(t *testing.T) {
	c, err := New().BuildStartURL(models.ScrapeJob{City: "San Antonio", State: "TX"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.apartments.com/apartments/san-antonio-tx/", c.URL)

	_, err = New().BuildStartURL(models.ScrapeJob{City: "Austin"})
	assert.Error(t, err)
}
