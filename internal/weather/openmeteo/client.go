// Package openmeteo provides a client for the Open-Meteo historical weather API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openmeteo"

	// DefaultBaseURL is the Open-Meteo archive endpoint.
	DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"
)

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("open-meteo status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("open-meteo status %d", e.StatusCode)
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the archive endpoint (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Registry, if set, collects the default client's request statistics.
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo archive API client.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type archiveResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// FetchHourly fetches every weather.Variables series for a location between
// two dates inclusive, in GMT.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) ([]weather.Observation, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, weather.ErrInvalidCoordinates
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("hourly", strings.Join(weather.Variables[:], ","))
	params.Set("timeformat", "unixtime")
	params.Set("timezone", "GMT")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, &APIError{StatusCode: resp.StatusCode, Reason: apiErr.Reason}
	}

	var body archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return c.toObservations(body.Hourly)
}

func (c *Client) toObservations(hourly map[string]json.RawMessage) ([]weather.Observation, error) {
	var times []int64
	if raw, ok := hourly["time"]; ok {
		if err := json.Unmarshal(raw, &times); err != nil {
			return nil, fmt.Errorf("decoding time: %w", err)
		}
	}
	if len(times) == 0 {
		return nil, weather.ErrMissingTimeColumn
	}

	observations := make([]weather.Observation, len(times))
	for i, ts := range times {
		observations[i].Time = time.Unix(ts, 0).UTC()
	}

	for idx, name := range weather.Variables {
		raw, ok := hourly[name]
		if !ok {
			c.logger.Warn().Str("variable", name).Msg("variable missing from response")
			for i := range observations {
				observations[i].Values[idx] = math.NaN()
			}
			continue
		}

		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		if len(values) != len(times) {
			return nil, fmt.Errorf("%w: %s has %d values for %d times", weather.ErrRaggedSeries, name, len(values), len(times))
		}
		for i, v := range values {
			if v == nil {
				observations[i].Values[idx] = math.NaN()
			} else {
				observations[i].Values[idx] = *v
			}
		}
	}
	return observations, nil
}
