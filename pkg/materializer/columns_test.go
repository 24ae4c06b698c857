package materializer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custsync/pkg/models"
)

func TestHeaderMatchesColumns(t *testing.T) {
	header := Header()
	require.Len(t, header, len(Columns))
	assert.Equal(t, "external_id", header[0])
	assert.Equal(t, "cached_at", header[len(header)-1])

	seen := make(map[string]bool)
	for _, name := range header {
		assert.False(t, seen[name], "duplicate column %s", name)
		seen[name] = true
	}
}

func TestExtractors(t *testing.T) {
	doc, err := decodeDocument([]byte(`{
		"id": 7,
		"email": "jane@example.com",
		"first_name": "Jane",
		"accepts_marketing": false,
		"total_spent": "12.50",
		"orders_count": 12345678901234567890,
		"tags": ["vip", "wholesale"],
		"default_address": {"city": "Lyon", "zip": "69001", "company": null},
		"addresses": [{"city": "Lyon", "address1": "1 <Rue> & Co"}],
		"recent_activity": [{"type": "login", "occurred_at": "2024-04-01T08:00:00Z"}],
		"recent_transactions": []
	}`))
	require.NoError(t, err)

	rec := &models.Record{
		ExternalID:      "7",
		SourceTimestamp: time.Date(2024, 4, 2, 0, 0, 0, 0, time.FixedZone("CET", 3600)),
		CachedAt:        time.Date(2024, 4, 3, 10, 0, 0, 500000, time.UTC).UnixMicro(),
	}

	got := make(map[string]string)
	for _, c := range Columns {
		got[c.Name] = c.Extract(doc, rec)
	}

	assert.Equal(t, "7", got["external_id"])
	assert.Equal(t, "jane@example.com", got["email"])
	assert.Equal(t, "Jane", got["first_name"])
	assert.Equal(t, "", got["last_name"])
	assert.Equal(t, "false", got["accepts_marketing"])
	assert.Equal(t, "12.50", got["total_spent"])
	assert.Equal(t, "12345678901234567890", got["orders_count"])
	assert.Equal(t, "vip, wholesale", got["tags"])
	assert.Equal(t, "Lyon", got["default_address_city"])
	assert.Equal(t, "69001", got["default_address_zip"])
	assert.Equal(t, "", got["default_address_company"])
	assert.Equal(t, "", got["default_address_country"])
	assert.Equal(t, "login", got["last_activity_type"])
	assert.Equal(t, "2024-04-01T08:00:00Z", got["last_activity_at"])
	assert.Equal(t, `[{"address1":"1 <Rue> & Co","city":"Lyon"}]`, got["addresses"])
	assert.Equal(t, `[]`, got["recent_transactions"])
	assert.Equal(t, "2024-04-01T23:00:00Z", got["source_timestamp"])
	assert.Equal(t, "2024-04-03T10:00:00.0005Z", got["cached_at"])
}

func TestExtractorsOnEmptyDocument(t *testing.T) {
	rec := &models.Record{ExternalID: "x"}
	for _, c := range Columns {
		v := c.Extract(nil, rec)
		switch c.Name {
		case "external_id":
			assert.Equal(t, "x", v)
		case "cached_at":
			// zero CachedAt is the unix epoch
			assert.Equal(t, "1970-01-01T00:00:00Z", v)
		default:
			assert.Empty(t, v, c.Name)
		}
	}
}

func TestLastActivityPrefersExplicitObject(t *testing.T) {
	doc := Document{
		"last_activity":   map[string]interface{}{"type": "order"},
		"recent_activity": []interface{}{map[string]interface{}{"type": "login"}},
	}
	assert.Equal(t, "order", scalar(lastActivity(doc)["type"]))
}
