package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"nodeflow/services/node"
)

// DefaultOpenMeteoURL is the forecast endpoint of the public Open-Meteo API.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const weatherTimeout = 10 * time.Second

// Reading is the current weather at one location.
type Reading struct {
	TemperatureC float64
	WindSpeedKmh float64
	WeatherCode  int
	ObservedAt   string
}

// WeatherClient reads current conditions for geographic coordinates.
// Failures of the upstream service wrap node.ErrResource.
type WeatherClient interface {
	Current(ctx context.Context, lat, lon float64) (Reading, error)
}

// OpenMeteoClient reads current conditions from an Open-Meteo compatible API.
type OpenMeteoClient struct {
	httpClient *http.Client
	endpoint   string
}

type OpenMeteoOption func(*OpenMeteoClient)

// WithHTTPClient replaces the default client and its timeout.
func WithHTTPClient(hc *http.Client) OpenMeteoOption {
	return func(c *OpenMeteoClient) { c.httpClient = hc }
}

// NewOpenMeteoClient creates a client for endpoint, or DefaultOpenMeteoURL
// when endpoint is empty.
func NewOpenMeteoClient(endpoint string, opts ...OpenMeteoOption) *OpenMeteoClient {
	if endpoint == "" {
		endpoint = DefaultOpenMeteoURL
	}
	c := &OpenMeteoClient{
		httpClient: &http.Client{Timeout: weatherTimeout},
		endpoint:   endpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
	Time        string  `json:"time"`
}

type forecastResponse struct {
	CurrentWeather *currentWeather `json:"current_weather"`
}

// Current fetches the current conditions at lat, lon.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (Reading, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: weather endpoint %q: %v", node.ErrConfiguration, c.endpoint, err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current_weather", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Reading{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: weather request: %v", node.ErrResource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Reading{}, fmt.Errorf("%w: weather service returned status %d: %s", node.ErrResource, resp.StatusCode, snippet)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Reading{}, fmt.Errorf("%w: decode weather response: %v", node.ErrResource, err)
	}
	if body.CurrentWeather == nil {
		return Reading{}, fmt.Errorf("%w: weather response has no current_weather block", node.ErrResource)
	}

	cw := body.CurrentWeather
	return Reading{
		TemperatureC: cw.Temperature,
		WindSpeedKmh: cw.WindSpeed,
		WeatherCode:  cw.WeatherCode,
		ObservedAt:   cw.Time,
	}, nil
}
