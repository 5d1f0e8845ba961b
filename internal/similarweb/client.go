// Package similarweb implements a thin client for the SimilarWeb
// total-traffic-and-engagement API.
package similarweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mktgdata/similarweb-ingest/internal/metrics"
)

const (
	endpointVisits     = "visits"
	endpointEngagement = "visits-duration"
)

// Params carries the query window shared by both series endpoints.
type Params struct {
	StartPeriod    string // YYYY-MM
	EndPeriod      string // YYYY-MM
	Granularity    string
	MainDomainOnly bool
}

// Point is one bucket of the primary visits series.
type Point struct {
	Date   string   `json:"date"`
	Visits *float64 `json:"visits"`
}

// Engagement holds the per-date engagement attributes. Absent metrics stay
// nil so the caller can persist them as nulls.
type Engagement struct {
	AvgVisitDuration *float64
	PagesPerVisit    *float64
	BounceRate       *float64
}

// VisitsResult is the decoded primary series plus the raw payload for
// archival.
type VisitsResult struct {
	Points []Point
	Raw    []byte
}

// EngagementResult maps date keys to engagement attributes, plus the raw
// payload for archival.
type EngagementResult struct {
	ByDate map[string]Engagement
	Raw    []byte
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Domain     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("similarweb error for %s (%s): %d %s", e.Domain, e.Endpoint, e.StatusCode, e.Body)
}

// Config controls client behavior.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client issues requests against the provider API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Client. The timeout applies per request.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Visits fetches the primary visits series for a domain.
func (c *Client) Visits(ctx context.Context, domain string, p Params) (VisitsResult, error) {
	raw, err := c.get(ctx, domain, endpointVisits, p)
	if err != nil {
		return VisitsResult{}, err
	}
	var payload struct {
		Visits []Point `json:"visits"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return VisitsResult{}, fmt.Errorf("decode visits response for %s: %w", domain, err)
	}
	return VisitsResult{Points: payload.Visits, Raw: raw}, nil
}

type metricPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Engagement fetches the engagement series for a domain and folds the three
// metric lists into a single date-keyed map.
func (c *Client) Engagement(ctx context.Context, domain string, p Params) (EngagementResult, error) {
	raw, err := c.get(ctx, domain, endpointEngagement, p)
	if err != nil {
		return EngagementResult{}, err
	}
	var payload struct {
		AvgVisitDuration []metricPoint `json:"avg_visit_duration"`
		PagesPerVisit    []metricPoint `json:"pages_per_visit"`
		BounceRate       []metricPoint `json:"bounce_rate"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return EngagementResult{}, fmt.Errorf("decode engagement response for %s: %w", domain, err)
	}

	byDate := make(map[string]Engagement, len(payload.AvgVisitDuration))
	for _, mp := range payload.AvgVisitDuration {
		e := byDate[mp.Date]
		e.AvgVisitDuration = mp.Value
		byDate[mp.Date] = e
	}
	for _, mp := range payload.PagesPerVisit {
		e := byDate[mp.Date]
		e.PagesPerVisit = mp.Value
		byDate[mp.Date] = e
	}
	for _, mp := range payload.BounceRate {
		e := byDate[mp.Date]
		e.BounceRate = mp.Value
		byDate[mp.Date] = e
	}
	return EngagementResult{ByDate: byDate, Raw: raw}, nil
}

func (c *Client) get(ctx context.Context, domain, endpoint string, p Params) ([]byte, error) {
	u, err := url.Parse(fmt.Sprintf(
		"%s/website/%s/total-traffic-and-engagement/%s",
		c.cfg.BaseURL, url.PathEscape(domain), endpoint,
	))
	if err != nil {
		return nil, fmt.Errorf("build provider url: %w", err)
	}
	q := u.Query()
	q.Set("start_date", p.StartPeriod)
	q.Set("end_date", p.EndPeriod)
	q.Set("granularity", p.Granularity)
	q.Set("main_domain_only", strconv.FormatBool(p.MainDomainOnly))
	q.Set("api_key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s series for %s: %w", endpoint, domain, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close provider response body failed", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveProviderRequest(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read %s response for %s: %w", endpoint, domain, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Domain:     domain,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}
