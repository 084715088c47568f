// Package places implements the scan.SearchProvider contract against the
// Google Places web API.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/croftbar/leadscan/internal/metrics"
	"github.com/croftbar/leadscan/internal/scan"
)

// Provider status codes that do not indicate a failure. ZERO_RESULTS is
// a valid outcome: the search simply found nothing.
const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// detailFields is the field mask requested on every detail lookup.
const detailFields = "place_id,name,formatted_address,geometry,business_status," +
	"formatted_phone_number,website,rating,user_ratings_total,types,address_components"

// Config controls Client behavior.
type Config struct {
	APIKey string
	// BaseURL without trailing slash, e.g. https://maps.googleapis.com/maps/api.
	BaseURL string
	// MaxResults caps a single text search when the caller passes none.
	MaxResults int
	// RequestsPerSecond paces every outgoing request.
	RequestsPerSecond float64
	// PageTokenDelay is the pause the provider requires before a freshly
	// issued page token becomes consumable.
	PageTokenDelay time.Duration
	// RequestTimeout bounds each individual call. Zero disables the
	// per-call deadline and leaves the transport's behavior.
	RequestTimeout time.Duration
}

// Client talks to the place-search API. All calls are sequential from
// the single worker, so one shared limiter paces the whole process.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a Client. The API key is required.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com/maps/api"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 60
	}
	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = rate.Inf
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{},
		limiter: rate.NewLimiter(rps, 1),
		logger:  logger,
	}, nil
}

type searchResponse struct {
	Status        string              `json:"status"`
	ErrorMessage  string              `json:"error_message"`
	Results       []scan.PlaceSummary `json:"results"`
	NextPageToken string              `json:"next_page_token"`
}

type detailsResponse struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message"`
	Result       scan.PlaceDetails `json:"result"`
}

// SearchByCity runs a paginated text search for "<category> in <city>,
// <state>". Paging stops when the provider returns no further token or
// the accumulated count reaches maxResults; the final page is truncated
// rather than overshooting.
func (c *Client) SearchByCity(ctx context.Context, city, state, category string, maxResults int) ([]scan.PlaceSummary, error) {
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	query := fmt.Sprintf("%s in %s, %s", category, city, state)
	c.logger.Debug("text search", zap.String("query", query), zap.Int("max_results", maxResults))

	var all []scan.PlaceSummary
	token := ""
	for {
		if token != "" {
			// The provider rejects tokens consumed too quickly after issue.
			if err := c.pause(ctx, c.cfg.PageTokenDelay); err != nil {
				return nil, err
			}
		}

		params := url.Values{}
		params.Set("query", query)
		params.Set("type", "establishment")
		if token != "" {
			params.Set("pagetoken", token)
		}

		var page searchResponse
		if err := c.get(ctx, "place/textsearch/json", params, &page); err != nil {
			return nil, fmt.Errorf("text search %q: %w", query, err)
		}

		all = append(all, page.Results...)
		c.logger.Debug("search page fetched",
			zap.String("query", query),
			zap.Int("page_results", len(page.Results)),
			zap.Int("total", len(all)),
		)

		token = page.NextPageToken
		if token == "" || len(all) >= maxResults {
			break
		}
	}

	if len(all) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

// GetDetails fetches the full detail record for one place id.
func (c *Client) GetDetails(ctx context.Context, placeID string) (scan.PlaceDetails, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)

	var resp detailsResponse
	if err := c.get(ctx, "place/details/json", params, &resp); err != nil {
		return scan.PlaceDetails{}, fmt.Errorf("place details %s: %w", placeID, err)
	}
	return resp.Result, nil
}

// get issues one paced, deadline-bounded request and decodes the body.
// Every failure mode on the provider's side, transport trouble, a bad
// HTTP status, a malformed body, or a non-OK, non-ZERO_RESULTS status,
// becomes a ProviderError so callers can skip the unit of work.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveProviderPause(waited)
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	params.Set("key", c.cfg.APIKey)
	reqURL := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(endpoint, "transport_error")
		return &scan.ProviderError{Status: "TRANSPORT_ERROR", Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProviderRequest(endpoint, "http_error")
		return &scan.ProviderError{
			Status:  "HTTP_ERROR",
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var envelope struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	body := json.NewDecoder(resp.Body)
	// Decode into a raw message first so the envelope status can be
	// inspected before committing to the payload shape.
	var raw json.RawMessage
	if err := body.Decode(&raw); err != nil {
		metrics.ObserveProviderRequest(endpoint, "decode_error")
		return &scan.ProviderError{Status: "DECODE_ERROR", Message: err.Error()}
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		metrics.ObserveProviderRequest(endpoint, "decode_error")
		return &scan.ProviderError{Status: "DECODE_ERROR", Message: err.Error()}
	}
	if envelope.Status != statusOK && envelope.Status != statusZeroResults {
		metrics.ObserveProviderRequest(endpoint, "api_error")
		c.logger.Warn("provider returned error status",
			zap.String("endpoint", endpoint),
			zap.String("status", envelope.Status),
		)
		return &scan.ProviderError{Status: envelope.Status, Message: envelope.ErrorMessage}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		metrics.ObserveProviderRequest(endpoint, "decode_error")
		return &scan.ProviderError{Status: "DECODE_ERROR", Message: err.Error()}
	}
	metrics.ObserveProviderRequest(endpoint, "ok")
	return nil
}

// pause sleeps for the delay unless the context ends first.
func (c *Client) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	metrics.ObserveProviderPause(delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
