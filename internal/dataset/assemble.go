package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/traffic"
)

// AssemblerConfig configures the final build.
type AssemblerConfig struct {
	// Location is the time zone of calendar features. Default: Europe/London.
	Location *time.Location
	// RushHours are local hours flagged as rush hour. Default: DefaultRushHours.
	RushHours []int
	Logger    zerolog.Logger
}

// Assembler joins the intermediate tables into model rows.
type Assembler struct {
	features *FeatureBuilder
	logger   zerolog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("Europe/London"); err != nil {
			return nil, fmt.Errorf("load time zone: %w", err)
		}
	}
	rush := cfg.RushHours
	if len(rush) == 0 {
		rush = DefaultRushHours
	}
	return &Assembler{
		features: NewFeatureBuilder(loc, rush),
		logger:   cfg.Logger,
	}, nil
}

// Inputs are the upstream artifacts of the final build.
type Inputs struct {
	AirQuality []WideRow
	Weather    []WeatherRow
	Matches    []traffic.SiteMatch
	AADF       *traffic.AADFIndex
}

// BuildStats summarizes a build.
type BuildStats struct {
	AirQualityRows int
	WeatherRows    int
	Joined         int
	Unmatched      int
	Impute         ImputeStats
}

// Build inner-joins air quality with weather on (site, timestamp), attaches
// the nearest count point's AADF for the local year, derives features and
// imputes missing traffic. The result is validated before it is returned.
func (a *Assembler) Build(in Inputs) ([]ModelRow, BuildStats, error) {
	stats := BuildStats{AirQualityRows: len(in.AirQuality), WeatherRows: len(in.Weather)}

	type key struct {
		site string
		ts   int64
	}
	weatherByKey := make(map[key]int, len(in.Weather))
	for i, w := range in.Weather {
		k := key{w.SiteCode, w.Time}
		if _, ok := weatherByKey[k]; !ok {
			weatherByKey[k] = i
		}
	}

	siteMatch := make(map[string]traffic.SiteMatch, len(in.Matches))
	for _, m := range in.Matches {
		if _, ok := siteMatch[m.SiteCode]; !ok {
			siteMatch[m.SiteCode] = m
		}
	}

	rows := make([]ModelRow, 0, len(in.AirQuality))
	for _, aq := range in.AirQuality {
		wi, ok := weatherByKey[key{aq.SiteCode, aq.Timestamp}]
		if !ok {
			continue
		}

		row := ModelRow{
			SiteCode:  aq.SiteCode,
			Timestamp: aq.Time(),
			NO2:       aq.NO2,
			PM25:      aq.PM25,
			Weather:   in.Weather[wi].Values(),
			AADF:      math.NaN(),
		}
		row.Features = a.features.Build(row.Timestamp)

		if m, ok := siteMatch[aq.SiteCode]; ok {
			row.CountPointID = m.CountPointID
			row.RoadType = m.RoadType
			if in.AADF != nil {
				if v, ok := in.AADF.Lookup(m.CountPointID, row.Features.Year); ok {
					row.AADF = v
				}
			}
		} else {
			stats.Unmatched++
		}
		rows = append(rows, row)
	}

	stats.Joined = len(rows)
	if len(rows) == 0 {
		return nil, stats, ErrEmptyResult
	}

	stats.Impute = ImputeTraffic(rows)
	a.logger.Info().
		Int("air_quality_rows", stats.AirQualityRows).
		Int("weather_rows", stats.WeatherRows).
		Int("joined", stats.Joined).
		Int("rows_without_match", stats.Unmatched).
		Int("aadf_missing", stats.Impute.Missing).
		Int("aadf_ffill", stats.Impute.ForwardFill).
		Int("aadf_bfill", stats.Impute.BackwardFill).
		Int("aadf_mean", stats.Impute.GlobalMean).
		Msg("model rows assembled")

	if err := Validate(rows); err != nil {
		return nil, stats, err
	}
	return rows, stats, nil
}
