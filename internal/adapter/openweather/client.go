// Package openweather resolves coordinates to the name of the nearest
// OpenWeather station via the current weather endpoint.
package openweather

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

const (
	// DefaultBaseURL is the OpenWeather API root.
	DefaultBaseURL = "https://api.openweathermap.org"

	weatherEndpoint = "/data/2.5/weather"
	providerName    = "openweather"
)

// Client implements domain.NameResolver.
type Client struct {
	rc      *resty.Client
	apiKey  string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates an OpenWeather client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	return &Client{rc: rc, apiKey: apiKey, clock: clockwork.NewRealClock(), logger: logger, metrics: metrics}
}

// ResolveName returns the station name reported for coords, or "" when the
// API has no station there.
func (c *Client) ResolveName(ctx context.Context, coords domain.Coordinates) (string, error) {
	start := c.clock.Now()
	var body weatherResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(coords.Lat, 'f', 6, 64),
			"lon":   strconv.FormatFloat(coords.Lon, 'f', 6, 64),
			"appid": c.apiKey,
		}).
		SetResult(&body).
		Get(weatherEndpoint)
	c.metrics.NameAPIDuration.WithLabelValues(providerName).Observe(c.clock.Since(start).Seconds())

	if err != nil {
		c.metrics.NameRequests.WithLabelValues(providerName, "error").Inc()
		return "", fmt.Errorf("weather request: %w", err)
	}
	if resp.StatusCode() == 404 {
		c.metrics.NameRequests.WithLabelValues(providerName, "empty").Inc()
		return "", nil
	}
	if !resp.IsSuccess() {
		c.metrics.NameRequests.WithLabelValues(providerName, "error").Inc()
		return "", parseError(resp)
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.metrics.NameRequests.WithLabelValues(providerName, "empty").Inc()
		c.logger.Debug("no weather station at coordinates", "lon", coords.Lon, "lat", coords.Lat)
		return "", nil
	}
	c.metrics.NameRequests.WithLabelValues(providerName, "success").Inc()
	return name, nil
}

// APIError is a non-2xx answer from OpenWeather.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweather API error: status %d: %s", e.StatusCode, e.Message)
}

func parseError(resp *resty.Response) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	msg := string(bytes.TrimSpace(resp.Body()))
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

type weatherResponse struct {
	Coord struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"coord"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}
