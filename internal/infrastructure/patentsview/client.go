// Package patentsview queries the PatentsView patents endpoint for assignee data.
package patentsview

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

	"golang.org/x/time/rate"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const (
	DefaultPerPage = 10000
	dateLayout     = "2006-01-02"
	userAgent      = "uspto-pipeline/1.0"
)

var requestedFields = []string{
	"patent_number",
	"patent_date",
	"assignee_first_name",
	"assignee_last_name",
	"assignee_organization",
	"assignee_lastknown_city",
	"assignee_lastknown_state",
	"assignee_lastknown_country",
	"assignee_lastknown_latitude",
	"assignee_lastknown_longitude",
	"assignee_lastknown_location_id",
	"assignee_type",
}

// Assignee is one assignee of a PatentsView patent. Absent values are nil.
type Assignee struct {
	FirstName    *string `json:"assignee_first_name"`
	LastName     *string `json:"assignee_last_name"`
	Organization *string `json:"assignee_organization"`
	City         *string `json:"assignee_lastknown_city"`
	State        *string `json:"assignee_lastknown_state"`
	Country      *string `json:"assignee_lastknown_country"`
	LocationID   *string `json:"assignee_lastknown_location_id"`
	Type         *string `json:"assignee_type"`
}

// Patent is one result row.
type Patent struct {
	Number    string     `json:"patent_number"`
	Date      string     `json:"patent_date"`
	Assignees []Assignee `json:"assignees"`
}

// QueryResponse is a single page of results.
type QueryResponse struct {
	Patents []Patent `json:"patents"`
	Count   flexInt  `json:"count"`
	Total   flexInt  `json:"total_patent_count"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// Searcher is the subset of the client used by enrichment.
type Searcher interface {
	PatentsIssuedBetween(ctx context.Context, from, to time.Time) ([]Patent, error)
}

// Client is a rate-limited PatentsView client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	perPage    int
	limiter    *rate.Limiter
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient builds a client from pipeline settings.
func NewClient(cfg config.PipelineConfig, logger logging.Logger, opts ...Option) *Client {
	perPage := cfg.SearchPageSize
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	limit := rate.Inf
	if cfg.SearchRatePerSecond > 0 {
		limit = rate.Limit(cfg.SearchRatePerSecond)
	}
	burst := cfg.SearchBurst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.SearchAPIURL, "/"),
		perPage:    perPage,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PatentsIssuedBetween returns every patent issued in [from, to], paging
// while ceil(total/perPage) >= page.
func (c *Client) PatentsIssuedBetween(ctx context.Context, from, to time.Time) ([]Patent, error) {
	var out []Patent
	total := 0
	for page := 1; page == 1 || pages(total, c.perPage) >= page; page++ {
		resp, err := c.Query(ctx, from, to, page)
		if err != nil {
			return nil, err
		}
		if page == 1 {
			total = int(resp.Total)
		}
		out = append(out, resp.Patents...)
	}
	c.logger.Debug("patentsview window fetched",
		logging.Date("from", from),
		logging.Date("to", to),
		logging.Int("total", total),
		logging.Int("returned", len(out)))
	return out, nil
}

func pages(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

// Query fetches one page of patents issued in [from, to].
func (c *Client) Query(ctx context.Context, from, to time.Time, page int) (*QueryResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "rate limiter wait")
	}

	u := c.baseURL + "/patents/query?" + c.queryParams(from, to, page).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "patentsview request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeEnrichmentFailed, "unexpected status").
			WithDetail(fmt.Sprintf("status=%d page=%d", resp.StatusCode, page))
	}

	var qr QueryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEnrichmentDecode, "decode patentsview response")
	}
	return &qr, nil
}

func (c *Client) queryParams(from, to time.Time, page int) url.Values {
	q := map[string]interface{}{
		"_and": []interface{}{
			map[string]interface{}{"_gte": map[string]string{"patent_date": from.Format(dateLayout)}},
			map[string]interface{}{"_lte": map[string]string{"patent_date": to.Format(dateLayout)}},
		},
	}
	o := map[string]string{
		"include_subentity_total_counts": "true",
		"matched_subentities_only":       "true",
		"per_page":                       strconv.Itoa(c.perPage),
		"page":                           strconv.Itoa(page),
	}
	qb, _ := json.Marshal(q)
	fb, _ := json.Marshal(requestedFields)
	ob, _ := json.Marshal(o)

	v := url.Values{}
	v.Set("q", string(qb))
	v.Set("f", string(fb))
	v.Set("o", string(ob))
	return v
}
