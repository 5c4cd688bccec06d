package boostapi

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

	"github.com/suspectuso/boost-tracker/internal/payment"
)

// Client is a boosts API HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new boosts API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1), // ~4 RPS
	}
}

// Query selects a page of stored boosts
type Query struct {
	Page         int
	Items        int
	CreatedAtGT  int64
	CreatedAtLT  int64
	Podcasts     []string
	EventGUIDs   []string
	EpisodeGUIDs []string
}

// Values encodes the query the way the boosts API expects it
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Items > 0 {
		v.Set("items", strconv.Itoa(q.Items))
	}
	if q.CreatedAtGT > 0 {
		v.Set("created_at_gt", strconv.FormatInt(q.CreatedAtGT, 10))
	}
	if q.CreatedAtLT > 0 {
		v.Set("created_at_lt", strconv.FormatInt(q.CreatedAtLT, 10))
	}
	if len(q.Podcasts) > 0 {
		v.Set("podcast", strings.Join(q.Podcasts, ","))
	}
	if len(q.EventGUIDs) > 0 {
		v.Set("eventGuid", strings.Join(q.EventGUIDs, ","))
	}
	if len(q.EpisodeGUIDs) > 0 {
		v.Set("episodeGuid", strings.Join(q.EpisodeGUIDs, ","))
	}
	return v
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

// GetBoosts returns one page of stored boosts
func (c *Client) GetBoosts(ctx context.Context, q Query) ([]payment.Invoice, error) {
	data, err := c.doRequest(ctx, "/api/boosts?"+q.Values().Encode())
	if err != nil {
		return nil, err
	}

	var invoices []payment.Invoice
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return invoices, nil
}
