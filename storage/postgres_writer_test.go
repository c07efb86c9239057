package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertArgs(t *testing.T) {
	r := listing("zillow", "42", "House", ptr(350000), firstRun)
	args := upsertArgs(r)
	assert.Len(t, args, 8)
	assert.Equal(t, "{}", args[6])
	assert.Equal(t, r.Price, args[3])

	r.ExtraFields = map[string]string{"sqft": "1200", "beds": "3"}
	args = upsertArgs(r)
	assert.Equal(t, `{"beds":"3","sqft":"1200"}`, args[6])
}
