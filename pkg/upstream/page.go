package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"custsync/pkg/models"
)

// Item is one upstream record with the fields the sync core needs extracted
type Item struct {
	ID string
	// Payload is the record exactly as returned upstream
	Payload json.RawMessage
	// UpdatedAt is the record's last-modified time, zero when absent or unparsable
	UpdatedAt time.Time
}

// Page is one response of the paginated API
type Page struct {
	Records    []Item
	HasMore    bool
	NextCursor models.Cursor
}

type pageBody struct {
	Records    []json.RawMessage `json:"records"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor"`
}

type itemHeader struct {
	ID        json.RawMessage `json:"id"`
	UpdatedAt json.RawMessage `json:"updated_at"`
}

var errMissingID = fmt.Errorf("record has no id")

// decodeItem pulls the id and updated_at out of a raw record.
// The id may be a JSON string or number.
func decodeItem(raw json.RawMessage) (Item, error) {
	var hdr itemHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Item{}, fmt.Errorf("invalid record: %w", err)
	}

	id, err := normalizeID(hdr.ID)
	if err != nil {
		return Item{}, err
	}

	return Item{ID: id, Payload: raw, UpdatedAt: parseTimestamp(hdr.UpdatedAt)}, nil
}

// parseTimestamp accepts only RFC3339 strings; anything else yields zero
func parseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil || s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func normalizeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errMissingID
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid record id: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return "", errMissingID
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("record id must be a string or number: %s", raw)
	}
	return n.String(), nil
}
