package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/airquality"
)

// PivotStats describes what Pivot discarded.
type PivotStats struct {
	Input      int
	Duplicates int
	Unknown    int
	Rows       int
}

type wideKey struct {
	site string
	ts   int64
}

// Pivot reshapes long measurements into one row per site and hour with one
// column per pollutant. The first reading of a (site, pollutant, timestamp)
// wins; later duplicates and pollutants without a column are dropped.
// Rows are sorted by site code, then timestamp.
func Pivot(records []airquality.RawMeasurement) ([]WideRow, PivotStats) {
	stats := PivotStats{Input: len(records)}
	index := make(map[wideKey]int)
	var rows []WideRow

	for _, m := range records {
		col, ok := pollutantColumns[m.PollutantName]
		if !ok {
			stats.Unknown++
			continue
		}

		k := wideKey{site: m.SiteCode, ts: m.Timestamp.UnixMilli()}
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, WideRow{SiteCode: k.site, Timestamp: k.ts})
		}

		cell := &rows[i].NO2
		if col == ColumnPM25 {
			cell = &rows[i].PM25
		}
		if *cell != nil {
			stats.Duplicates++
			continue
		}
		*cell = float64Ptr(m.Value)
	}

	sortWide(rows)
	stats.Rows = len(rows)
	return rows, stats
}

// Melt turns wide rows back into long measurements, skipping missing cells.
func Melt(rows []WideRow) []airquality.RawMeasurement {
	var out []airquality.RawMeasurement
	for _, r := range rows {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if r.NO2 != nil {
			out = append(out, airquality.RawMeasurement{
				SiteCode:      r.SiteCode,
				PollutantName: "NO2",
				SeriesCode:    airquality.SpeciesNO2,
				Timestamp:     ts,
				Value:         *r.NO2,
			})
		}
		if r.PM25 != nil {
			out = append(out, airquality.RawMeasurement{
				SiteCode:      r.SiteCode,
				PollutantName: "PM2.5",
				SeriesCode:    airquality.SpeciesPM25,
				Timestamp:     ts,
				Value:         *r.PM25,
			})
		}
	}
	return out
}

func sortWide(rows []WideRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SiteCode != rows[j].SiteCode {
			return rows[i].SiteCode < rows[j].SiteCode
		}
		return rows[i].Timestamp < rows[j].Timestamp
	})
}

// ColumnSummary holds descriptive statistics of one pollutant column.
type ColumnSummary struct {
	Column  string
	Missing int
	Min     float64
	Max     float64
	Mean    float64
}

// Summarize computes per-pollutant statistics of a wide table. Min, Max and
// Mean are NaN for a column without values.
func Summarize(rows []WideRow) []ColumnSummary {
	pick := map[string]func(WideRow) *float64{
		ColumnNO2:  func(r WideRow) *float64 { return r.NO2 },
		ColumnPM25: func(r WideRow) *float64 { return r.PM25 },
	}

	var out []ColumnSummary
	for _, col := range []string{ColumnNO2, ColumnPM25} {
		s := ColumnSummary{Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		var n int
		for _, r := range rows {
			v := pick[col](r)
			if v == nil {
				s.Missing++
				continue
			}
			sum += *v
			n++
			s.Min = math.Min(s.Min, *v)
			s.Max = math.Max(s.Max, *v)
		}
		if n == 0 {
			s.Min, s.Max, s.Mean = math.NaN(), math.NaN(), math.NaN()
		} else {
			s.Mean = sum / float64(n)
		}
		out = append(out, s)
	}
	return out
}

// LogSummary writes one log line per pollutant column.
func LogSummary(logger zerolog.Logger, summaries []ColumnSummary) {
	for _, s := range summaries {
		logger.Info().
			Str("column", s.Column).
			Int("missing", s.Missing).
			Float64("min", s.Min).
			Float64("max", s.Max).
			Float64("mean", math.Round(s.Mean*100)/100).
			Msg("pollutant summary")
	}
}

// ReshapeParts reads the raw parts in dir and writes the wide table to out.
func ReshapeParts(dir, out string, logger zerolog.Logger) (PivotStats, error) {
	records, err := ReadParts(dir)
	if err != nil {
		return PivotStats{}, err
	}

	rows, stats := Pivot(records)
	if len(rows) == 0 {
		return stats, ErrEmptyResult
	}
	if err := WriteWide(out, rows); err != nil {
		return stats, err
	}

	logger.Info().
		Int("input", stats.Input).
		Int("duplicates", stats.Duplicates).
		Int("unknown_pollutant", stats.Unknown).
		Int("rows", stats.Rows).
		Str("path", out).
		Msg("air quality reshaped")
	LogSummary(logger, Summarize(rows))
	return stats, nil
}

// WriteWide writes the wide pollutant table.
func WriteWide(path string, rows []WideRow) error {
	return writeParquet(path, rows)
}

// ReadWide reads the wide pollutant table.
func ReadWide(path string) ([]WideRow, error) {
	return readParquet[WideRow](path)
}
