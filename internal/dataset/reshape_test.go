package dataset_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/dataset"
)

func ptr(v float64) *float64 { return &v }

func TestPivot_FirstReadingWins(t *testing.T) {
	rows, stats := dataset.Pivot([]airquality.RawMeasurement{
		measurement("MY1", "NO2", hour(1), 30),
		measurement("MY1", "PM2.5", hour(1), 9),
		measurement("MY1", "NO2", hour(1), 99),
		measurement("MY1", "NO2", hour(0), 25),
		measurement("KC1", "PM2.5", hour(0), 7),
		{SiteCode: "MY1", PollutantName: "O3", Timestamp: hour(0), Value: 50},
	})

	assert.Equal(t, dataset.PivotStats{Input: 6, Duplicates: 1, Unknown: 1, Rows: 3}, stats)
	require.Len(t, rows, 3)

	assert.Equal(t, "KC1", rows[0].SiteCode)
	assert.Nil(t, rows[0].NO2)
	assert.Equal(t, 7.0, *rows[0].PM25)

	assert.Equal(t, "MY1", rows[1].SiteCode)
	assert.Equal(t, hour(0), rows[1].Time())
	assert.Equal(t, 25.0, *rows[1].NO2)

	assert.Equal(t, hour(1), rows[2].Time())
	assert.Equal(t, 30.0, *rows[2].NO2)
	assert.Equal(t, 9.0, *rows[2].PM25)
}

func TestPivot_MeltRoundTrip(t *testing.T) {
	wide := []dataset.WideRow{
		{SiteCode: "KC1", Timestamp: hour(0).UnixMilli(), NO2: ptr(18), PM25: ptr(6.5)},
		{SiteCode: "KC1", Timestamp: hour(1).UnixMilli(), NO2: ptr(19)},
		{SiteCode: "MY1", Timestamp: hour(0).UnixMilli(), PM25: ptr(11)},
		{SiteCode: "MY1", Timestamp: hour(2).UnixMilli(), NO2: ptr(44), PM25: ptr(13)},
	}

	back, stats := dataset.Pivot(dataset.Melt(wide))

	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, wide, back)
}

func TestSummarize(t *testing.T) {
	rows := []dataset.WideRow{
		{SiteCode: "A", NO2: ptr(10), PM25: nil},
		{SiteCode: "A", NO2: ptr(30), PM25: nil},
		{SiteCode: "A", NO2: nil, PM25: nil},
	}

	summaries := dataset.Summarize(rows)
	require.Len(t, summaries, 2)

	no2 := summaries[0]
	assert.Equal(t, dataset.ColumnNO2, no2.Column)
	assert.Equal(t, 1, no2.Missing)
	assert.Equal(t, 10.0, no2.Min)
	assert.Equal(t, 30.0, no2.Max)
	assert.Equal(t, 20.0, no2.Mean)

	pm25 := summaries[1]
	assert.Equal(t, 3, pm25.Missing)
	assert.True(t, math.IsNaN(pm25.Mean))
}

func TestWideParquet_KeepsMissingCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.parquet")
	rows := []dataset.WideRow{
		{SiteCode: "MY1", Timestamp: hour(0).UnixMilli(), NO2: ptr(41.5)},
		{SiteCode: "MY1", Timestamp: hour(1).UnixMilli(), PM25: ptr(8)},
	}

	require.NoError(t, dataset.WriteWide(path, rows))
	back, err := dataset.ReadWide(path)
	require.NoError(t, err)

	require.Len(t, back, 2)
	assert.Equal(t, 41.5, *back[0].NO2)
	assert.Nil(t, back[0].PM25)
	assert.Nil(t, back[1].NO2)
	assert.Equal(t, 8.0, *back[1].PM25)
}

func TestReshapeParts(t *testing.T) {
	dir := t.TempDir()
	parts := filepath.Join(dir, "parts")
	sink, err := dataset.NewPartSink(parts, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sink.Write([]airquality.RawMeasurement{
		measurement("MY1", "NO2", hour(0), 40),
		measurement("MY1", "PM2.5", hour(0), 10),
	}))
	require.NoError(t, sink.Write([]airquality.RawMeasurement{
		measurement("MY1", "NO2", hour(0), 41),
	}))

	out := filepath.Join(dir, "wide.parquet")
	stats, err := dataset.ReshapeParts(parts, out, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
	assert.Equal(t, 1, stats.Duplicates)

	rows, err := dataset.ReadWide(out)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 40.0, *rows[0].NO2)
}
