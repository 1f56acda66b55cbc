// Package worker runs the long-running download jobs of the pipeline.
package worker

import (
	"time"

	"github.com/londonair/airdataset/internal/airquality"
)

// FetchConfig holds configuration for the historical air-quality fetch job.
type FetchConfig struct {
	// Pollutants are the series fetched for every site.
	// Default: airquality.DefaultPollutants
	Pollutants []airquality.Pollutant

	// StartDate and EndDate bound the fetched range. Each site's range is
	// further narrowed to its overlap window.
	// Default: 2010-01-01 to 2025-05-30
	StartDate time.Time
	EndDate   time.Time

	// ChunkDays is the window size of a single request.
	// Default: 90
	ChunkDays int

	// Concurrency is the number of sites fetched at once.
	// Default: 4
	Concurrency int

	// FlushEvery is the number of pending records that triggers a write to the sink.
	// Default: 10000
	FlushEvery int

	// RequestDelay is slept after every network request. Zero disables it.
	RequestDelay time.Duration

	// SampleCheck probes a short sample window before fetching a site.
	// Default: false
	SampleCheck bool

	// SampleMinValues is the number of readings each pollutant needs in the sample.
	// Default: 100
	SampleMinValues int
}

// DefaultFetchConfig returns the default fetch configuration.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Pollutants:      airquality.DefaultPollutants,
		StartDate:       time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC),
		ChunkDays:       90,
		Concurrency:     4,
		FlushEvery:      10000,
		SampleMinValues: 100,
	}
}

func (c FetchConfig) withDefaults() FetchConfig {
	d := DefaultFetchConfig()
	if len(c.Pollutants) == 0 {
		c.Pollutants = d.Pollutants
	}
	if c.StartDate.IsZero() {
		c.StartDate = d.StartDate
	}
	if c.EndDate.IsZero() {
		c.EndDate = d.EndDate
	}
	if c.ChunkDays <= 0 {
		c.ChunkDays = d.ChunkDays
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = d.FlushEvery
	}
	if c.SampleMinValues <= 0 {
		c.SampleMinValues = d.SampleMinValues
	}
	return c
}

// WeatherConfig holds configuration for the weather download job.
type WeatherConfig struct {
	// OutputDir receives one raw weather file per site.
	OutputDir string

	// StartDate and EndDate bound the requested period.
	// Default: 2010-01-01 to 2025-05-29
	StartDate time.Time
	EndDate   time.Time

	// RequestDelay is slept after every request.
	// Default: 5 seconds
	RequestDelay time.Duration

	// BatchSize and BatchPause add a longer pause after every BatchSize sites,
	// except after the last one.
	// Default: 3 sites, 60 seconds
	BatchSize  int
	BatchPause time.Duration
}

// DefaultWeatherConfig returns the default weather job configuration.
func DefaultWeatherConfig() WeatherConfig {
	return WeatherConfig{
		StartDate:    time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, 5, 29, 0, 0, 0, 0, time.UTC),
		RequestDelay: 5 * time.Second,
		BatchSize:    3,
		BatchPause:   60 * time.Second,
	}
}

func (c WeatherConfig) withDefaults() WeatherConfig {
	d := DefaultWeatherConfig()
	if c.StartDate.IsZero() {
		c.StartDate = d.StartDate
	}
	if c.EndDate.IsZero() {
		c.EndDate = d.EndDate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}
