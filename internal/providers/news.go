// thenewsapi.com top-stories and source-directory client.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default endpoints of the news API.
const (
	DefaultNewsBaseURL    = "https://api.thenewsapi.com/v1/news/top"
	DefaultSourcesBaseURL = "https://api.thenewsapi.com/v1/news/sources"
)

// NewsQuery carries the arguments of a top-stories request. Zero values are
// filled with the API's documented defaults at request time.
type NewsQuery struct {
	Limit       int       // number of articles; default 1
	Language    string    // ISO language code; default "en"
	Categories  string    // comma-separated category list
	Domains     string    // comma-separated source domain allowlist
	Search      string    // free-text search term
	PublishedOn time.Time // restrict to articles published on this date
}

// SourcesQuery carries the arguments of a source-directory request.
type SourcesQuery struct {
	Categories string
	Language   string
	Page       int
}

// NewsClient fetches top stories and the source directory. Construct with
// NewNewsClient so the API token and HTTP client are set.
type NewsClient struct {
	BaseURL        string
	SourcesBaseURL string
	APIKey         string
	HTTPClient     *http.Client
}

// NewNewsClient builds a NewsClient. Empty base URLs fall back to the public
// thenewsapi.com endpoints.
func NewNewsClient(baseURL, sourcesBaseURL, apiKey string, timeout time.Duration) *NewsClient {
	if baseURL == "" {
		baseURL = DefaultNewsBaseURL
	}
	if sourcesBaseURL == "" {
		sourcesBaseURL = DefaultSourcesBaseURL
	}
	return &NewsClient{
		BaseURL:        baseURL,
		SourcesBaseURL: sourcesBaseURL,
		APIKey:         apiKey,
		HTTPClient:     newHTTPClient(timeout),
	}
}

// Fetch performs a single GET for top stories matching q.
//
// The response envelope's "meta" field is stripped; everything else is
// returned as-is. An envelope without a "data" field counts as an error
// ("no news found"), matching the upstream API's empty-result shape.
func (c *NewsClient) Fetch(ctx context.Context, q NewsQuery) (json.RawMessage, error) {
	if q.Limit < 1 {
		q.Limit = 1
	}
	if q.Language == "" {
		q.Language = "en"
	}

	v := url.Values{}
	v.Set("api_token", c.APIKey)
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("language", q.Language)
	if q.Categories != "" {
		v.Set("categories", q.Categories)
	}
	if q.Domains != "" {
		v.Set("domains", q.Domains)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if !q.PublishedOn.IsZero() {
		v.Set("published_on", q.PublishedOn.UTC().Format("2006-01-02"))
	}

	body, err := c.get(ctx, c.BaseURL, v)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("news: decode response: %w", err)
	}
	if _, ok := envelope["data"]; !ok {
		return nil, fmt.Errorf("news: no news found")
	}
	delete(envelope, "meta")

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("news: encode payload: %w", err)
	}
	return payload, nil
}

// Sources performs a single GET against the source directory. The response
// is returned unmodified.
func (c *NewsClient) Sources(ctx context.Context, q SourcesQuery) (json.RawMessage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Language == "" {
		q.Language = "en"
	}

	v := url.Values{}
	v.Set("api_token", c.APIKey)
	v.Set("language", q.Language)
	v.Set("page", strconv.Itoa(q.Page))
	if q.Categories != "" {
		v.Set("categories", q.Categories)
	}

	return c.get(ctx, c.SourcesBaseURL, v)
}

// get issues one GET request and returns the raw body of a 2xx response.
func (c *NewsClient) get(ctx context.Context, base string, v url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("news", resp)
	}

	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("news: decode response: %w", err)
	}
	return payload, nil
}
