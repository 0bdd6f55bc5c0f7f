package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

const providerName = "mapbox"

// Client implements domain.NameResolver using the Mapbox reverse geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// ResolveName returns the name of the place (town or city) containing
// coords, or "" when Mapbox has no place there.
func (c *Client) ResolveName(ctx context.Context, coords domain.Coordinates) (string, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", coords.Lon, coords.Lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place"},
		"language":     {"es"},
	}

	start := c.clock.Now()
	name, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.NameAPIDuration.WithLabelValues(providerName).Observe(c.clock.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.NameRequests.WithLabelValues(providerName, "error").Inc()
		return "", err
	case name == "":
		c.metrics.NameRequests.WithLabelValues(providerName, "empty").Inc()
		c.logger.Debug("no mapbox place at coordinates", "lon", coords.Lon, "lat", coords.Lat)
	default:
		c.metrics.NameRequests.WithLabelValues(providerName, "success").Inc()
	}
	return name, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return "", nil
	}
	return mapboxResp.Features[0].Text, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
