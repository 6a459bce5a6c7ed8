// OpenWeatherMap current-weather client.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultWeatherBaseURL is the OpenWeatherMap current-weather endpoint.
const DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// WeatherClient fetches current weather conditions for a location. The zero
// value is not usable; construct with NewWeatherClient so the API key and
// HTTP client are set.
type WeatherClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewWeatherClient builds a WeatherClient. An empty baseURL falls back to
// the public OpenWeatherMap endpoint.
func NewWeatherClient(baseURL, apiKey string, timeout time.Duration) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	return &WeatherClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: newHTTPClient(timeout),
	}
}

// Fetch performs a single GET for the current weather at location.
//
// It returns the provider's native JSON payload untouched. Non-2xx statuses
// and transport failures come back as errors; there is no retry.
func (c *WeatherClient) Fetch(ctx context.Context, location, units string) (json.RawMessage, error) {
	if location == "" {
		return nil, fmt.Errorf("weather: location is required")
	}
	if units == "" {
		units = "metric"
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.APIKey)
	q.Set("units", units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("weather", resp)
	}

	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}
	return payload, nil
}
