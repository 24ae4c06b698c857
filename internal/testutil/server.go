package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// UpstreamServer serves a FakeSource's records over the upstream wire format
type UpstreamServer struct {
	*httptest.Server

	mu       sync.Mutex
	items    map[string][]map[string]interface{}
	statuses []int
	requests []*http.Request
}

// NewUpstreamServer starts a server that is closed on test cleanup
func NewUpstreamServer(t *testing.T) *UpstreamServer {
	t.Helper()
	s := &UpstreamServer{items: make(map[string][]map[string]interface{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Set replaces the records served under path
func (s *UpstreamServer) Set(path string, items []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[strings.Trim(path, "/")] = items
}

// QueueStatus makes the next requests answer with the given statuses, in order
func (s *UpstreamServer) QueueStatus(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, codes...)
}

// Requests returns the requests received so far
func (s *UpstreamServer) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

func (s *UpstreamServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	var status int
	if len(s.statuses) > 0 {
		status, s.statuses = s.statuses[0], s.statuses[1:]
	}
	items, ok := s.items[strings.Trim(r.URL.Path, "/")]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := parseOffset(r.URL.Query().Get("cursor"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := BuildPage(items, offset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body := struct {
		Records    []json.RawMessage `json:"records"`
		HasMore    bool              `json:"has_more"`
		NextCursor string            `json:"next_cursor,omitempty"`
	}{Records: make([]json.RawMessage, 0, len(page.Records)), HasMore: page.HasMore, NextCursor: string(page.NextCursor)}
	for _, rec := range page.Records {
		body.Records = append(body.Records, rec.Payload)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
