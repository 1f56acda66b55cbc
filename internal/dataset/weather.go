package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/londonair/airdataset/internal/weather"
)

// WeatherFilter keeps observations whose local time falls inside every
// configured range. Bounds are inclusive.
type WeatherFilter struct {
	Location  *time.Location
	Weekdays  map[time.Weekday]bool
	FirstHour int
	LastHour  int
	FirstMon  time.Month
	LastMon   time.Month
}

// DefaultWeatherFilter keeps weekdays, 07:00 to 18:59, March to October.
func DefaultWeatherFilter(loc *time.Location) *WeatherFilter {
	return &WeatherFilter{
		Location: loc,
		Weekdays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
		FirstHour: 7,
		LastHour:  18,
		FirstMon:  time.March,
		LastMon:   time.October,
	}
}

// Keep reports whether t passes the filter. A nil filter keeps everything.
func (f *WeatherFilter) Keep(t time.Time) bool {
	if f == nil {
		return true
	}
	local := t.In(f.Location)
	if !f.Weekdays[local.Weekday()] {
		return false
	}
	if h := local.Hour(); h < f.FirstHour || h > f.LastHour {
		return false
	}
	m := local.Month()
	return m >= f.FirstMon && m <= f.LastMon
}

// CombineStats summarizes a weather combine.
type CombineStats struct {
	Files    int
	Failed   int
	Rows     int
	Dropped  int
	Filtered int
}

// CombineConfig configures CombineWeather.
type CombineConfig struct {
	Dir         string
	Filter      *WeatherFilter
	Concurrency int
	Logger      zerolog.Logger
}

// CombineWeather reads every raw weather file in Dir and returns the rows
// sorted by site and time. A file that cannot be read is logged and
// skipped; no readable file at all is an error.
func CombineWeather(ctx context.Context, cfg CombineConfig) ([]WeatherRow, CombineStats, error) {
	var stats CombineStats

	paths, err := filepath.Glob(filepath.Join(cfg.Dir, weather.FileName("*")))
	if err != nil {
		return nil, stats, err
	}
	if len(paths) == 0 {
		return nil, stats, &MissingSourceFileError{Path: filepath.Join(cfg.Dir, weather.FileName("<SITE>"))}
	}
	sort.Strings(paths)
	stats.Files = len(paths)

	results := make([]weather.ReadResult, len(paths))
	failed := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := readWeatherFile(path)
			if err != nil {
				cfg.Logger.Warn().Err(err).Str("path", path).Msg("skipping weather file")
				failed[i] = true
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	var rows []WeatherRow
	for i, res := range results {
		if failed[i] {
			stats.Failed++
			continue
		}
		stats.Dropped += res.Dropped
		for _, o := range res.Observations {
			if !cfg.Filter.Keep(o.Time) {
				stats.Filtered++
				continue
			}
			rows = append(rows, toWeatherRow(o))
		}
	}
	if stats.Failed == stats.Files {
		return nil, stats, fmt.Errorf("no weather file in %s could be read", cfg.Dir)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SiteCode != rows[j].SiteCode {
			return rows[i].SiteCode < rows[j].SiteCode
		}
		return rows[i].Time < rows[j].Time
	})
	stats.Rows = len(rows)
	return rows, stats, nil
}

func readWeatherFile(path string) (weather.ReadResult, error) {
	site, ok := weather.SiteCodeFromFileName(filepath.Base(path))
	if !ok {
		return weather.ReadResult{}, fmt.Errorf("unexpected weather file name %q", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return weather.ReadResult{}, err
	}
	defer f.Close()
	return weather.ReadSiteFile(f, site)
}

// WriteWeather writes the combined weather table.
func WriteWeather(path string, rows []WeatherRow) error {
	return writeParquet(path, rows)
}

// ReadWeather reads the combined weather table.
func ReadWeather(path string) ([]WeatherRow, error) {
	return readParquet[WeatherRow](path)
}
