// Package config loads the process-wide paths and tuning knobs of the
// pipeline from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/londonair/airdataset/internal/airquality/laqn"
	"github.com/londonair/airdataset/internal/weather/openmeteo"
)

const dateLayout = "2006-01-02"

// Paths are the on-disk artifacts of the pipeline, all under DataDir.
type Paths struct {
	DataDir string

	SelectedSites string
	MatchedSites  string
	CountPoints   string
	AADF          string

	Cache       string
	AQParts     string
	AQRawCSV    string
	WeatherDir  string
	WideAQ      string
	WeatherWide string
	Final       string
	FinalCSV    string
}

// NewPaths lays out the artifacts under dataDir.
func NewPaths(dataDir string) Paths {
	raw := filepath.Join(dataDir, "raw")
	interim := filepath.Join(dataDir, "interim")
	final := filepath.Join(dataDir, "final", "aq_traffic")

	return Paths{
		DataDir:       dataDir,
		SelectedSites: filepath.Join(dataDir, "selected_sites.csv"),
		MatchedSites:  filepath.Join(dataDir, "matched_sites_laqn_to_dft.csv"),
		CountPoints:   filepath.Join(raw, "traffic", "dft_rawcount_region_id_6.csv"),
		AADF:          filepath.Join(raw, "traffic", "dft_traffic_counts_aadf.csv"),
		Cache:         filepath.Join(raw, "pollution", "cache"),
		AQParts:       filepath.Join(raw, "pollution", "laqn_parts"),
		AQRawCSV:      filepath.Join(raw, "pollution", "laqn_raw.csv"),
		WeatherDir:    filepath.Join(raw, "weather"),
		WideAQ:        filepath.Join(interim, "pollution", "laqn_wide.parquet"),
		WeatherWide:   filepath.Join(interim, "weather", "weather_filtered.parquet"),
		Final:         filepath.Join(final, "model_ready_dataset.parquet"),
		FinalCSV:      filepath.Join(final, "model_ready_dataset.csv"),
	}
}

// Config holds runtime configuration for every stage.
type Config struct {
	Paths Paths

	LogLevel  string
	LogPretty bool

	AQBaseURL      string
	WeatherBaseURL string

	FetchStart        time.Time
	FetchEnd          time.Time
	FetchWorkers      int
	FetchChunkDays    int
	FetchFlushEvery   int
	RequestTimeout    time.Duration
	MaxRetries        uint64
	EmptyRetryAfter   time.Duration
	FetchSampleCheck  bool
	FetchRequestDelay time.Duration

	WeatherStart        time.Time
	WeatherEnd          time.Time
	WeatherRequestDelay time.Duration
	WeatherBatchSize    int
	WeatherBatchPause   time.Duration
	WeatherFilter       bool

	SelectMinYears float64
	SelectTopN     int

	RushHours []int
	TimeZone  string

	DBExportEnabled bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	cfg.Paths = NewPaths(getEnvOrDefault("DATA_DIR", "data"))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogPretty = getBool("LOG_PRETTY")
	cfg.AQBaseURL = getEnvOrDefault("AQ_BASE_URL", laqn.DefaultBaseURL)
	cfg.WeatherBaseURL = getEnvOrDefault("WEATHER_BASE_URL", openmeteo.DefaultBaseURL)
	cfg.FetchSampleCheck = getBool("FETCH_SAMPLE_CHECK")
	cfg.WeatherFilter = getBool("WEATHER_FILTER")
	cfg.DBExportEnabled = getBool("DB_EXPORT_ENABLED")
	cfg.TimeZone = getEnvOrDefault("TIME_ZONE", "Europe/London")

	p := parser{}
	cfg.FetchStart = p.date("FETCH_START_DATE", "2010-01-01")
	cfg.FetchEnd = p.date("FETCH_END_DATE", "2025-05-30")
	cfg.FetchWorkers = p.integer("FETCH_WORKERS", 4)
	cfg.FetchChunkDays = p.integer("FETCH_CHUNK_DAYS", 90)
	cfg.FetchFlushEvery = p.integer("FETCH_FLUSH_EVERY", 10000)
	cfg.RequestTimeout = p.duration("FETCH_REQUEST_TIMEOUT", 30*time.Second)
	cfg.MaxRetries = uint64(p.integer("FETCH_MAX_RETRIES", 5)) //nolint:gosec // validated non-negative below
	cfg.EmptyRetryAfter = p.duration("FETCH_EMPTY_RETRY_AFTER", 168*time.Hour)
	cfg.FetchRequestDelay = p.duration("FETCH_REQUEST_DELAY", 0)

	cfg.WeatherStart = p.date("WEATHER_START_DATE", "2010-01-01")
	cfg.WeatherEnd = p.date("WEATHER_END_DATE", "2025-05-29")
	cfg.WeatherRequestDelay = p.duration("WEATHER_REQUEST_DELAY", 5*time.Second)
	cfg.WeatherBatchSize = p.integer("WEATHER_BATCH_SIZE", 3)
	cfg.WeatherBatchPause = p.duration("WEATHER_BATCH_PAUSE", 60*time.Second)

	cfg.SelectMinYears = p.number("SELECT_MIN_YEARS", 5)
	cfg.SelectTopN = p.integer("SELECT_TOP_N", 10)
	cfg.RushHours = p.integers("RUSH_HOURS", []int{7, 8, 9, 16, 17, 18})

	if p.err != nil {
		return cfg, p.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.FetchEnd.Before(c.FetchStart):
		return fmt.Errorf("FETCH_END_DATE %s is before FETCH_START_DATE %s",
			c.FetchEnd.Format(dateLayout), c.FetchStart.Format(dateLayout))
	case c.WeatherEnd.Before(c.WeatherStart):
		return fmt.Errorf("WEATHER_END_DATE %s is before WEATHER_START_DATE %s",
			c.WeatherEnd.Format(dateLayout), c.WeatherStart.Format(dateLayout))
	case c.FetchWorkers <= 0:
		return fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.FetchWorkers)
	case c.FetchChunkDays <= 0:
		return fmt.Errorf("FETCH_CHUNK_DAYS must be positive, got %d", c.FetchChunkDays)
	case c.FetchFlushEvery <= 0:
		return fmt.Errorf("FETCH_FLUSH_EVERY must be positive, got %d", c.FetchFlushEvery)
	case c.WeatherBatchSize <= 0:
		return fmt.Errorf("WEATHER_BATCH_SIZE must be positive, got %d", c.WeatherBatchSize)
	case c.SelectMinYears < 0:
		return fmt.Errorf("SELECT_MIN_YEARS must not be negative, got %g", c.SelectMinYears)
	case c.SelectTopN <= 0:
		return fmt.Errorf("SELECT_TOP_N must be positive, got %d", c.SelectTopN)
	}
	for _, h := range c.RushHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("RUSH_HOURS contains invalid hour %d", h)
		}
	}
	return nil
}

// parser keeps the first parse error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) date(key, def string) time.Time {
	t, err := time.ParseInLocation(dateLayout, getEnvOrDefault(key, def), time.UTC)
	if err != nil {
		p.fail(key, err)
	}
	return t
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if n < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return n
}

func (p *parser) number(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) integers(key string, def []int) []int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			p.fail(key, err)
			return def
		}
		out = append(out, n)
	}
	return out
}

func getBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
