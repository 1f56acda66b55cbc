package dataset_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/dataset"
	"github.com/londonair/airdataset/internal/traffic"
	"github.com/londonair/airdataset/internal/weather"
)

func newAssembler(t *testing.T) *dataset.Assembler {
	t.Helper()
	a, err := dataset.NewAssembler(dataset.AssemblerConfig{Location: london(t), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return a
}

func weatherRow(site string, ts time.Time, temp float64) dataset.WeatherRow {
	return dataset.WeatherRow{SiteCode: site, Time: ts.UnixMilli(), Temperature: temp, WeatherCode: 3}
}

func TestAssembler_Build(t *testing.T) {
	t0 := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	in := dataset.Inputs{
		AirQuality: []dataset.WideRow{
			{SiteCode: "MY1", Timestamp: t0.UnixMilli(), NO2: ptr(40)},
			{SiteCode: "MY1", Timestamp: t1.UnixMilli(), NO2: ptr(41)},
			{SiteCode: "MY1", Timestamp: t2.UnixMilli(), NO2: ptr(42), PM25: ptr(9)},
			{SiteCode: "KC1", Timestamp: t0.UnixMilli(), PM25: ptr(6)},
		},
		Weather: []dataset.WeatherRow{
			weatherRow("MY1", t0, 5),
			weatherRow("MY1", t0, 99),
			weatherRow("MY1", t2, 4),
			weatherRow("KC1", t0, 6),
			weatherRow("BL0", t0, 7),
		},
		Matches: []traffic.SiteMatch{
			{SiteCode: "MY1", CountPointID: "CP1", RoadType: "Major"},
		},
		AADF: traffic.NewAADFIndex([]traffic.AADF{
			{CountPointID: "CP1", Year: 2023, AllMotorVehicles: 1000},
			{CountPointID: "CP1", Year: 2023, AllMotorVehicles: 1200},
			{CountPointID: "CP1", Year: 2024, AllMotorVehicles: 2000},
		}),
	}

	rows, stats, err := newAssembler(t).Build(in)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.AirQualityRows)
	assert.Equal(t, 5, stats.WeatherRows)
	assert.Equal(t, 3, stats.Joined)
	assert.Equal(t, 1, stats.Unmatched)
	assert.Equal(t, 1, stats.Impute.GlobalMean)

	require.Len(t, rows, 3)

	kc1 := rows[0]
	assert.Equal(t, "KC1", kc1.SiteCode)
	assert.Empty(t, kc1.RoadType)
	assert.Equal(t, 1550.0, kc1.AADF)

	my1 := rows[1]
	assert.Equal(t, "MY1", my1.SiteCode)
	assert.Equal(t, t0, my1.Timestamp)
	assert.Equal(t, 5.0, my1.Weather[weather.Temperature])
	assert.Equal(t, "CP1", my1.CountPointID)
	assert.Equal(t, "Major", my1.RoadType)
	assert.Equal(t, 1100.0, my1.AADF)
	assert.Equal(t, 2023, my1.Features.Year)
	assert.False(t, my1.Features.IsHoliday)

	assert.Equal(t, t2, rows[2].Timestamp)
	assert.Equal(t, 2000.0, rows[2].AADF)
	assert.True(t, rows[2].Features.IsHoliday)
	assert.Equal(t, 9.0, *rows[2].PM25)
}

func TestAssembler_EmptyJoin(t *testing.T) {
	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	_, stats, err := newAssembler(t).Build(dataset.Inputs{
		AirQuality: []dataset.WideRow{{SiteCode: "MY1", Timestamp: ts.UnixMilli(), NO2: ptr(1)}},
		Weather:    []dataset.WeatherRow{weatherRow("KC1", ts, 10)},
	})

	assert.ErrorIs(t, err, dataset.ErrEmptyResult)
	assert.Equal(t, 0, stats.Joined)
}

func TestAssembler_NoTrafficAnywhere(t *testing.T) {
	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := newAssembler(t).Build(dataset.Inputs{
		AirQuality: []dataset.WideRow{{SiteCode: "MY1", Timestamp: ts.UnixMilli(), NO2: ptr(1)}},
		Weather:    []dataset.WeatherRow{weatherRow("MY1", ts, 10)},
	})

	var violation *dataset.InvariantViolationError
	assert.True(t, errors.As(err, &violation))
}
