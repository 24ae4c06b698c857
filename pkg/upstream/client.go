package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"custsync/pkg/config"
	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/metrics"
	"custsync/pkg/models"
	"custsync/pkg/ratelimit"
	"custsync/pkg/retry"
)

const maxBodyPreview = 200

// Client fetches pages of a collection from the upstream API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	paths      map[string]string
	retry      *retry.Config
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient builds a client from configuration. token overrides cfg.Upstream.Token when set.
func NewClient(cfg *config.Config, token string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if token == "" {
		token = cfg.Upstream.Token
	}

	paths := make(map[string]string, len(cfg.Collections))
	for _, col := range cfg.Collections {
		paths[col.Name] = col.ResourcePath()
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if rpm := cfg.Upstream.RequestsPerMinute; rpm > 0 {
		limiter = ratelimit.NewTokenBucket(rpm, time.Minute)
	}

	log = log.WithField("component", "upstream")
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Upstream.Timeout},
		baseURL:    strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		token:      token,
		userAgent:  cfg.Upstream.UserAgent,
		paths:      paths,
		retry: &retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.Retry.BaseDelay,
				MaxDelay:     cfg.Retry.MaxDelay,
				Multiplier:   2.0,
				JitterFactor: 0.1,
			},
			RetryIf: retry.DefaultRetryIf,
			Logger:  log,
		},
		limiter: limiter,
		logger:  log,
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// FetchPage requests one page of the collection starting at cursor (nil for the first page).
// Transient failures are retried here; what escapes is classified transient or fatal.
func (c *Client) FetchPage(ctx context.Context, collection string, cursor *models.Cursor, limit int) (*Page, error) {
	path, ok := c.paths[collection]
	if !ok {
		return nil, errs.Validation("upstream.fetch", "unknown collection %q", collection)
	}

	endpoint, err := c.pageURL(path, cursor, limit)
	if err != nil {
		return nil, errs.FatalFetch("upstream.fetch", 0, err)
	}

	start := time.Now()
	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*Page, error) {
		return c.fetchOnce(ctx, endpoint)
	}, c.retry)
	metrics.PageFetchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())

	return page, err
}

func (c *Client) pageURL(path string, cursor *models.Cursor, limit int) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid upstream url: %w", err)
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		q.Set("cursor", string(*cursor))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.FatalFetch("upstream.fetch", 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.TransientFetch("upstream.fetch", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if err := c.checkResponseStatus(req, resp, body); err != nil {
		return nil, err
	}

	return c.decodePage(endpoint, body)
}

func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.LogRequest(c.logger, req.Method, req.URL.Path, 0, duration)
		return nil, errs.TransientFetch("upstream.fetch", 0, fmt.Errorf("network error: %w", err))
	}

	logger.LogRequest(c.logger, req.Method, req.URL.Path, resp.StatusCode, duration)
	return resp, nil
}

// checkResponseStatus maps the HTTP status to a fetch error classification
func (c *Client) checkResponseStatus(req *http.Request, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	cause := fmt.Errorf("upstream returned %s: %s", resp.Status, preview(body))
	if errs.IsRetryableStatusCode(resp.StatusCode) {
		return errs.TransientFetch("upstream.fetch", resp.StatusCode, cause)
	}

	c.logger.ErrorWithFields("Upstream rejected request", map[string]interface{}{
		"status": resp.StatusCode,
		"url":    req.URL.Path,
	})
	return errs.FatalFetch("upstream.fetch", resp.StatusCode, cause)
}

func (c *Client) decodePage(endpoint string, body []byte) (*Page, error) {
	var raw pageBody
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.WarnWithFields("Failed to parse page", map[string]interface{}{
			"url":          endpoint,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		return nil, errs.TransientFetch("upstream.decode", http.StatusOK, fmt.Errorf("failed to parse page: %w", err))
	}

	page := &Page{
		Records:    make([]Item, 0, len(raw.Records)),
		HasMore:    raw.HasMore,
		NextCursor: models.Cursor(raw.NextCursor),
	}
	for i, rec := range raw.Records {
		item, err := decodeItem(rec)
		if err != nil {
			return nil, errs.FatalFetch("upstream.decode", http.StatusOK, fmt.Errorf("record %d: %w", i, err))
		}
		page.Records = append(page.Records, item)
	}
	return page, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > maxBodyPreview {
		s = s[:maxBodyPreview] + "..."
	}
	return s
}
