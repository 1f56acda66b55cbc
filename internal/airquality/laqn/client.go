// Package laqn provides a client for the London Air Quality Network API.
package laqn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/rawcache"
)

const (
	// DefaultBaseURL is the base URL for the LAQN API.
	DefaultBaseURL = "https://api.erg.ic.ac.uk/AirQuality"

	// DefaultGroupName is the site group listed by FetchSites.
	DefaultGroupName = "London"

	// ProviderName identifies this provider.
	ProviderName = "laqn"

	apiDateLayout = "2006-01-02"
)

// ErrMalformedPayload is returned when a response body is not valid JSON.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusError is returned for responses the client will not retry.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// ClientConfig holds configuration for the LAQN client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// GroupName selects the site listing (defaults to DefaultGroupName).
	GroupName string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 30s).
	Timeout time.Duration

	// MaxRetries bounds retries of transient failures (default: 5).
	MaxRetries uint64

	// Registry, if set, collects the default client's request statistics.
	Registry *resilience.Registry

	// Cache stores raw window payloads. Optional.
	Cache *rawcache.Cache

	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a LAQN API client.
type Client struct {
	baseURL    string
	groupName  string
	httpClient HTTPDoer
	cache      *rawcache.Cache
	logger     zerolog.Logger
}

// NewClient creates a new LAQN client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	groupName := cfg.GroupName
	if groupName == "" {
		groupName = DefaultGroupName
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			rc.MaxRetries = cfg.MaxRetries
		}
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		groupName:  groupName,
		httpClient: httpClient,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Source tells where a window's records came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cached"
	SourceEmpty   Source = "empty_marker"
)

// WindowRequest describes one (site, pollutant, window) fetch.
type WindowRequest struct {
	SiteCode  string
	SiteName  string
	Pollutant airquality.Pollutant
	Window    airquality.Window
}

// WindowResult holds the records extracted for a window.
type WindowResult struct {
	Records []airquality.RawMeasurement
	Source  Source
}

// FetchSites retrieves the monitoring sites of the configured group.
func (c *Client) FetchSites(ctx context.Context) ([]*airquality.MonitoringSite, error) {
	url := fmt.Sprintf("%s/Information/MonitoringSiteSpecies/GroupName=%s/Json", c.baseURL, c.groupName)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch sites: %w", err)
	}

	var result sitesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode sites response: %w", err)
	}

	raw, err := oneOrMany(result.Sites.Site)
	if err != nil {
		return nil, fmt.Errorf("decode sites response: %w", err)
	}

	sites := make([]*airquality.MonitoringSite, 0, len(raw))
	for _, item := range raw {
		var s siteData
		if err := json.Unmarshal(item, &s); err != nil || s.SiteCode == "" {
			c.logger.Debug().Err(err).Msg("skipping unreadable site entry")
			continue
		}
		sites = append(sites, s.toSite())
	}
	return sites, nil
}

// FetchWindow returns the records of one window, consulting the cache first.
// Only non-empty payloads are cached; an empty response leaves an empty marker.
func (c *Client) FetchWindow(ctx context.Context, req WindowRequest) (WindowResult, error) {
	key := rawcache.Key{
		SiteCode: req.SiteCode,
		Species:  string(req.Pollutant.Species),
		Start:    req.Window.Start,
		End:      req.Window.End,
	}

	if c.cache != nil {
		payload, status, err := c.cache.Get(key)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache lookup failed")
		}
		switch status {
		case rawcache.Hit:
			records, _ := ExtractRecords(payload, req.SiteCode, req.SiteName, req.Pollutant)
			return WindowResult{Records: records, Source: SourceCache}, nil
		case rawcache.EmptyHit:
			return WindowResult{Source: SourceEmpty}, nil
		}
	}

	body, err := c.get(ctx, c.seriesURL(req))
	if err != nil {
		return WindowResult{}, err
	}

	records, err := ExtractRecords(body, req.SiteCode, req.SiteName, req.Pollutant)
	if err != nil {
		return WindowResult{}, err
	}

	if c.cache != nil {
		if len(records) > 0 {
			err = c.cache.Put(key, body)
		} else {
			err = c.cache.MarkEmpty(key)
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache write failed")
		}
	}

	return WindowResult{Records: records, Source: SourceNetwork}, nil
}

// SampleWindow is the window probed by HasEnoughData: seven days starting
// thirty days after the overlap start.
func SampleWindow(overlapStart time.Time) airquality.Window {
	start := truncateDay(overlapStart).AddDate(0, 0, 30)
	return airquality.Window{Start: start, End: start.AddDate(0, 0, 6)}
}

// HasEnoughData reports whether every pollutant has at least minValues
// readings in the sample window.
func (c *Client) HasEnoughData(ctx context.Context, site airquality.OverlapRecord, pollutants []airquality.Pollutant, minValues int) (bool, error) {
	window := SampleWindow(site.OverlapStart)
	for _, p := range pollutants {
		result, err := c.FetchWindow(ctx, WindowRequest{
			SiteCode:  site.SiteCode,
			SiteName:  site.SiteName,
			Pollutant: p,
			Window:    window,
		})
		if err != nil {
			return false, fmt.Errorf("sample %s: %w", p.Name, err)
		}
		if len(result.Records) < minValues {
			c.logger.Info().
				Str("site_code", site.SiteCode).
				Str("pollutant", p.Name).
				Int("values", len(result.Records)).
				Int("required", minValues).
				Msg("insufficient sample data")
			return false, nil
		}
	}
	return true, nil
}

// seriesURL builds the time-series URL. The API treats EndDate as exclusive,
// so the day after the window end is sent.
func (c *Client) seriesURL(req WindowRequest) string {
	return fmt.Sprintf("%s/Data/SiteSpecies/SiteCode=%s/SpeciesCode=%s/StartDate=%s/EndDate=%s/Json",
		c.baseURL,
		req.SiteCode,
		req.Pollutant.Species,
		req.Window.Start.Format(apiDateLayout),
		req.Window.End.AddDate(0, 0, 1).Format(apiDateLayout),
	)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
