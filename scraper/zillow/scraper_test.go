package zillow

import (
	"testing"

	"listing-scraper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body><ul>
<li><article data-testid="property-card" id="zpid_2077">
  <a data-test="property-card-link" href="/homedetails/12-King-St-W-Toronto-ON/2077_zpid/">
    <address>12 King St W, Toronto, ON M5H 1A1</address>
  </a>
  <span data-test="property-card-price">C$2,450/mo</span>
  <ul data-test="property-card-details">
    <li><b>2</b> <abbr>bds</abbr></li>
    <li><b>1</b> <abbr>ba</abbr></li>
    <li><b>750</b> <abbr>sqft</abbr></li>
  </ul>
</article></li>
<li><article data-testid="property-card">
  <address>Somewhere without a link</address>
</article></li>
</ul>
<a title="Next page" href="/homes/toronto-on_rb/2_p/">Next</a>
</body></html>`

func TestExtractRecords(t *testing.T) {
	snap := models.NewSnapshot("https://www.zillow.com/homes/toronto-on_rb/", "", 200, resultsPage)

	records, err := New().ExtractRecords(snap)
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "2077", r[models.FieldNaturalKey])
	assert.Equal(t, "12 King St W", r[models.FieldTitle])
	assert.Equal(t, "12 King St W, Toronto, ON M5H 1A1", r[models.FieldAddress])
	assert.Equal(t, "C$2,450/mo", r[models.FieldPrice])
	assert.Equal(t, "https://www.zillow.com/homedetails/12-King-St-W-Toronto-ON/2077_zpid/", r[models.FieldURL])
	assert.Equal(t, "2", r["beds"])
	assert.Equal(t, "1", r["baths"])

	// no link: the pipeline will reject it as malformed
	assert.Empty(t, records[1][models.FieldURL])
}

func TestNextPageCursor(t *testing.T) {
	snap := models.NewSnapshot("https://www.zillow.com/homes/toronto-on_rb/", "", 200, resultsPage)
	next, ok := New().NextPageCursor(snap, models.URLCursor(snap.URL))
	require.True(t, ok)
	assert.Equal(t, "https://www.zillow.com/homes/toronto-on_rb/2_p/", next.URL)

	disabled := models.NewSnapshot(snap.URL, "", 200, `<a title="Next page" aria-disabled="true" href="/x">Next</a>`)
	_, ok = New().NextPageCursor(disabled, models.URLCursor(snap.URL))
	assert.False(t, ok)
}

func TestBuildStartURL(t *testing.T) {
	c, err := New().BuildStartURL(models.ScrapeJob{City: "Toronto", State: "Ontario"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.zillow.com/homes/toronto-on_rb/", c.URL)

	c, err = New().BuildStartURL(models.ScrapeJob{City: "Saskatoon", State: "Sask."})
	require.NoError(t, err)
	assert.Equal(t, "https://www.zillow.com/homes/saskatoon-sk_rb/", c.URL)

	_, err = New().BuildStartURL(models.ScrapeJob{City: "Toronto", State: "Atlantis"})
	assert.Error(t, err)
}

func TestBlockDetectorKnowsPressAndHold(t *testing.T) {
	snap := models.NewSnapshot("https://www.zillow.com/homes/toronto-on_rb/", "", 200,
		`<div id="px-captcha">Press & Hold to confirm you are a human (and not a bot).</div>`)
	assert.True(t, New().BlockDetector().Matches(snap))
}

func TestExtractRecordsSingularUnits(t *testing.T) {
	page := `<article data-testid="property-card">
  <a data-test="property-card-link" href="/homedetails/1-Bay-St/31_zpid/"><address>1 Bay St, Toronto, ON</address></a>
  <ul data-test="property-card-details">
    <li><b>1</b> <abbr>bd</abbr></li>
    <li><b>2</b> <abbr>baths</abbr></li>
    <li><b>1,050</b> <abbr>sqft</abbr></li>
  </ul>
</article>`
	records, err := New().ExtractRecords(models.NewSnapshot("https://www.zillow.com/homes/toronto-on_rb/", "", 200, page))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0]["beds"])
	assert.Equal(t, "2", records[0]["baths"])
	assert.Equal(t, "1,050", records[0]["sqft"])
}
