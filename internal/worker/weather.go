package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/traffic"
	"github.com/londonair/airdataset/internal/weather"
)

// HourlyFetcher retrieves hourly weather for a location.
type HourlyFetcher interface {
	FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) ([]weather.Observation, error)
}

// WeatherJob downloads one raw weather file per matched site.
// Sites are processed one at a time to stay within the remote rate limit.
type WeatherJob struct {
	config  WeatherConfig
	fetcher HourlyFetcher
	logger  zerolog.Logger
	sleep   func(context.Context, time.Duration) error
}

// WeatherJobConfig holds configuration for creating a WeatherJob.
type WeatherJobConfig struct {
	Config  WeatherConfig
	Fetcher HourlyFetcher
	Logger  zerolog.Logger
	Sleep   func(context.Context, time.Duration) error
}

// NewWeatherJob creates a new weather download job.
func NewWeatherJob(cfg WeatherJobConfig) (*WeatherJob, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("weather job: fetcher is required")
	}
	if cfg.Config.OutputDir == "" {
		return nil, errors.New("weather job: output directory is required")
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &WeatherJob{
		config:  cfg.Config.withDefaults(),
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		sleep:   sleep,
	}, nil
}

// WeatherResult contains the result of a weather download run.
type WeatherResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Sites      int
	Downloaded int
	Existing   int
	Failed     int
	Errors     []string
}

// Run downloads weather for every site. A failed site is logged and skipped.
func (j *WeatherJob) Run(ctx context.Context, sites []traffic.SiteMatch) (*WeatherResult, error) {
	startTime := time.Now()
	result := &WeatherResult{StartTime: startTime, Sites: len(sites)}

	if err := os.MkdirAll(j.config.OutputDir, 0o755); err != nil {
		return result, fmt.Errorf("create weather dir: %w", err)
	}

	j.logger.Info().
		Int("sites", len(sites)).
		Time("start_date", j.config.StartDate).
		Time("end_date", j.config.EndDate).
		Msg("starting weather download")

	for i, site := range sites {
		if err := ctx.Err(); err != nil {
			return j.finish(result), err
		}

		logger := j.logger.With().Str("site_code", site.SiteCode).Logger()
		path := filepath.Join(j.config.OutputDir, weather.FileName(site.SiteCode))

		if _, err := os.Stat(path); err == nil {
			logger.Debug().Str("path", path).Msg("weather file exists, skipping")
			result.Existing++
			continue
		}

		n, err := j.download(ctx, site, path)
		switch {
		case err != nil && ctx.Err() != nil:
			return j.finish(result), ctx.Err()
		case err != nil:
			logger.Warn().Err(err).Msg("weather download failed, skipping site")
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", site.SiteCode, err))
		default:
			logger.Info().Int("observations", n).Str("path", path).Msg("weather downloaded")
			result.Downloaded++
		}

		if err := j.sleep(ctx, j.config.RequestDelay); err != nil {
			return j.finish(result), err
		}
		if (i+1)%j.config.BatchSize == 0 && i+1 < len(sites) {
			logger.Info().Dur("pause", j.config.BatchPause).Msg("pausing between batches")
			if err := j.sleep(ctx, j.config.BatchPause); err != nil {
				return j.finish(result), err
			}
		}
	}

	return j.finish(result), nil
}

func (j *WeatherJob) finish(result *WeatherResult) *WeatherResult {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("downloaded", result.Downloaded).
		Int("existing", result.Existing).
		Int("failed", result.Failed).
		Msg("weather download completed")
	return result
}

func (j *WeatherJob) download(ctx context.Context, site traffic.SiteMatch, path string) (int, error) {
	observations, err := j.fetcher.FetchHourly(ctx, site.SiteLat, site.SiteLon, j.config.StartDate, j.config.EndDate)
	if err != nil {
		return 0, err
	}
	for i := range observations {
		observations[i].SiteCode = site.SiteCode
	}

	var buf bytes.Buffer
	if err := weather.WriteSiteFile(&buf, observations); err != nil {
		return 0, err
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return len(observations), nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
