package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "custsync/pkg/errors"
	"custsync/pkg/models"
	"custsync/pkg/upstream"
)

// FetchCall is one request observed by FakeSource
type FetchCall struct {
	Collection string
	Cursor     string
	Limit      int
}

// FakeSource is an in-process paginated API over fixed record sets.
// Cursors are opaque offsets of the form "after:<n>".
type FakeSource struct {
	mu       sync.Mutex
	items    map[string][]map[string]interface{}
	failures map[int]error
	calls    []FetchCall
	// BeforeFetch runs before every request with its 1-based call number
	BeforeFetch func(call int)
}

// NewFakeSource creates an empty source
func NewFakeSource() *FakeSource {
	return &FakeSource{
		items:    make(map[string][]map[string]interface{}),
		failures: make(map[int]error),
	}
}

// AddCustomers seeds n customer-shaped records with ids cust-0001..cust-n
func (f *FakeSource) AddCustomers(collection string, n int) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]map[string]interface{}, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, Customer(i, base.Add(time.Duration(i)*time.Minute)))
	}
	f.Set(collection, items)
}

// Customer builds a customer-shaped record with id cust-<i>
func Customer(i int, updated time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                fmt.Sprintf("cust-%04d", i),
		"email":             fmt.Sprintf("customer%d@example.com", i),
		"first_name":        fmt.Sprintf("First%d", i),
		"last_name":         fmt.Sprintf("Last%d", i),
		"state":             "enabled",
		"verified_email":    i%2 == 0,
		"accepts_marketing": i%3 == 0,
		"orders_count":      i % 7,
		"total_spent":       fmt.Sprintf("%d.50", i),
		"currency":          "USD",
		"tags":              "vip, wholesale",
		"updated_at":        updated.Format(time.RFC3339),
		"default_address": map[string]interface{}{
			"city":    "Springfield",
			"country": "US",
			"zip":     fmt.Sprintf("%05d", i),
		},
	}
}

// Set replaces the records of a collection
func (f *FakeSource) Set(collection string, items []map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[collection] = items
}

// FailOnCall makes the given 1-based request fail with err
func (f *FakeSource) FailOnCall(call int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[call] = err
}

// Calls returns the requests seen so far
func (f *FakeSource) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

// FetchPage implements the pager's source
func (f *FakeSource) FetchPage(ctx context.Context, collection string, cursor *models.Cursor, limit int) (*upstream.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	call := FetchCall{Collection: collection, Limit: limit}
	if cursor != nil {
		call.Cursor = string(*cursor)
	}
	f.calls = append(f.calls, call)
	n := len(f.calls)
	failure := f.failures[n]
	items := f.items[collection]
	hook := f.BeforeFetch
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if failure != nil {
		return nil, failure
	}

	offset, err := parseOffset(call.Cursor)
	if err != nil {
		return nil, errs.FatalFetch("fake.fetch", 400, err)
	}
	return BuildPage(items, offset, limit)
}

// BuildPage slices items into a page starting at offset
func BuildPage(items []map[string]interface{}, offset, limit int) (*upstream.Page, error) {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	page := &upstream.Page{Records: make([]upstream.Item, 0, end-offset)}
	for _, item := range items[offset:end] {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		rec := upstream.Item{ID: fmt.Sprint(item["id"]), Payload: raw}
		if s, ok := item["updated_at"].(string); ok {
			rec.UpdatedAt, _ = time.Parse(time.RFC3339, s)
		}
		page.Records = append(page.Records, rec)
	}
	if end < len(items) {
		page.HasMore = true
		page.NextCursor = OffsetCursor(end)
	}
	return page, nil
}

// OffsetCursor is the cursor FakeSource hands out after n records
func OffsetCursor(n int) models.Cursor {
	return models.Cursor("after:" + strconv.Itoa(n))
}

func parseOffset(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, "after:"))
	if err != nil || !strings.HasPrefix(cursor, "after:") {
		return 0, fmt.Errorf("unknown cursor %q", cursor)
	}
	return n, nil
}
