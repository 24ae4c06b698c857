package materializer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"custsync/pkg/models"
)

// Document is a decoded record payload
type Document map[string]interface{}

// Column is one output column: a name and how to extract it. Extractors
// return "" for absent fields.
type Column struct {
	Name    string
	Extract func(doc Document, rec *models.Record) string
}

// Columns is the output schema, in order
var Columns = []Column{
	{"external_id", func(_ Document, rec *models.Record) string { return rec.ExternalID }},
	scalarColumn("email"),
	scalarColumn("first_name"),
	scalarColumn("last_name"),
	scalarColumn("phone"),
	scalarColumn("state"),
	scalarColumn("verified_email"),
	scalarColumn("accepts_marketing"),
	{"tags", func(doc Document, _ *models.Record) string { return list(doc["tags"]) }},
	scalarColumn("note"),
	scalarColumn("currency"),
	scalarColumn("total_spent"),
	scalarColumn("orders_count"),
	scalarColumn("created_at"),
	scalarColumn("updated_at"),
	addressColumn("address1"),
	addressColumn("address2"),
	addressColumn("city"),
	addressColumn("province"),
	addressColumn("country"),
	addressColumn("zip"),
	addressColumn("company"),
	addressColumn("phone"),
	{"last_activity_type", func(doc Document, _ *models.Record) string { return scalar(lastActivity(doc)["type"]) }},
	{"last_activity_at", func(doc Document, _ *models.Record) string { return scalar(lastActivity(doc)["occurred_at"]) }},
	blobColumn("addresses"),
	blobColumn("recent_activity"),
	blobColumn("recent_transactions"),
	{"source_timestamp", func(_ Document, rec *models.Record) string { return timestamp(rec.SourceTimestamp) }},
	{"cached_at", func(_ Document, rec *models.Record) string { return timestamp(rec.CachedTime()) }},
}

// Header returns the column names
func Header() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

func scalarColumn(field string) Column {
	return Column{field, func(doc Document, _ *models.Record) string { return scalar(doc[field]) }}
}

func addressColumn(field string) Column {
	return Column{"default_address_" + field, func(doc Document, _ *models.Record) string {
		return scalar(object(doc["default_address"])[field])
	}}
}

func blobColumn(field string) Column {
	return Column{field, func(doc Document, _ *models.Record) string { return blob(doc[field]) }}
}

// lastActivity prefers an explicit last_activity object and falls back to
// the first entry of recent_activity
func lastActivity(doc Document) map[string]interface{} {
	if obj := object(doc["last_activity"]); len(obj) > 0 {
		return obj
	}
	if items, ok := doc["recent_activity"].([]interface{}); ok && len(items) > 0 {
		return object(items[0])
	}
	return nil
}

func object(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return blob(t)
	}
}

// list joins an array of scalars with ", "; a plain string passes through
func list(v interface{}) string {
	items, ok := v.([]interface{})
	if !ok {
		return scalar(v)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, scalar(item))
	}
	return strings.Join(parts, ", ")
}

// blob renders v as compact JSON with sorted keys
func blob(v interface{}) string {
	if v == nil {
		return ""
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeDocument(payload []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
