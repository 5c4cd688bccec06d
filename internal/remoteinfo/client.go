package remoteinfo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
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

const userAgent = "boost-tracker/1.0"

// Client is a Podcast Index HTTP client
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a new Podcast Index client. Key and secret are optional;
// without them requests are sent unauthenticated.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		now:     time.Now,
	}
}

type valueResponse struct {
	Status any `json:"status"`
	Value  *struct {
		FeedTitle string `json:"feedTitle"`
		Title     string `json:"title"`
	} `json:"value"`
}

func (r valueResponse) found() bool {
	switch s := r.Status.(type) {
	case bool:
		return s
	case string:
		return s != "false"
	}
	return r.Value != nil
}

// Fetch resolves a podcast/episode guid pair to feed and item titles.
// A lookup that finds nothing returns an empty RemoteItem and no error.
func (c *Client) Fetch(ctx context.Context, podcastGUID, episodeGUID string) (payment.RemoteItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return payment.RemoteItem{}, err
	}

	query := url.Values{}
	query.Set("podcastguid", podcastGUID)
	query.Set("episodeguid", episodeGUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/value/byepisodeguid?"+query.Encode(), nil)
	if err != nil {
		return payment.RemoteItem{}, fmt.Errorf("create request: %w", err)
	}
	c.sign(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return payment.RemoteItem{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return payment.RemoteItem{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return payment.RemoteItem{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	var body valueResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return payment.RemoteItem{}, fmt.Errorf("unmarshal: %w", err)
	}

	if !body.found() || body.Value == nil {
		return payment.RemoteItem{}, nil
	}

	return payment.RemoteItem{
		Feed: body.Value.FeedTitle,
		Item: body.Value.Title,
	}, nil
}

// sign adds the Podcast Index auth headers
func (c *Client) sign(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.apiKey == "" || c.apiSecret == "" {
		return
	}

	date := strconv.FormatInt(c.now().Unix(), 10)
	sum := sha1.Sum([]byte(c.apiKey + c.apiSecret + date))

	req.Header.Set("X-Auth-Key", c.apiKey)
	req.Header.Set("X-Auth-Date", date)
	req.Header.Set("Authorization", hex.EncodeToString(sum[:]))
}
