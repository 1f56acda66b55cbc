package dataset_test

import (
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"

	"github.com/londonair/airdataset/internal/dataset"
)

func TestFeatureBuilder_LocalCalendar(t *testing.T) {
	b := dataset.NewFeatureBuilder(london(t), dataset.DefaultRushHours)

	// 07:30 UTC is 08:30 BST on a Monday.
	f := b.Build(time.Date(2024, 7, 1, 7, 30, 0, 0, time.UTC))
	assert.Equal(t, 8, f.Hour)
	assert.Equal(t, 0, f.DayOfWeek)
	assert.Equal(t, 7, f.Month)
	assert.Equal(t, 2024, f.Year)
	assert.Equal(t, 183, f.DayOfYear)
	assert.True(t, f.IsRushHour)
	assert.False(t, f.IsWeekend)
	assert.False(t, f.IsHoliday)

	// Local midnight crosses into the next month.
	f = b.Build(time.Date(2024, 6, 30, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, 0, f.Hour)
	assert.Equal(t, 7, f.Month)
	assert.Equal(t, 0, f.DayOfWeek)
}

func TestFeatureBuilder_Flags(t *testing.T) {
	b := dataset.NewFeatureBuilder(london(t), dataset.DefaultRushHours)

	tests := []struct {
		name     string
		ts       time.Time
		weekend  bool
		holiday  bool
		rushHour bool
	}{
		{"saturday", time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC), true, false, false},
		{"sunday evening", time.Date(2024, 7, 7, 16, 0, 0, 0, time.UTC), true, false, true},
		{"christmas day", time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC), false, true, false},
		{"summer bank holiday", time.Date(2024, 8, 26, 8, 0, 0, 0, time.UTC), false, true, true},
		{"day after bank holiday", time.Date(2024, 8, 27, 8, 0, 0, 0, time.UTC), false, false, true},
		{"new year", time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), false, true, false},
		{"late evening", time.Date(2024, 1, 10, 19, 0, 0, 0, time.UTC), false, false, false},
		{"royal wedding", time.Date(2011, 4, 29, 11, 0, 0, 0, time.UTC), false, true, false},
		{"spring holiday moved in 2012", time.Date(2012, 5, 28, 11, 0, 0, 0, time.UTC), false, false, false},
		{"spring holiday 2012", time.Date(2012, 6, 4, 11, 0, 0, 0, time.UTC), false, true, false},
		{"diamond jubilee", time.Date(2012, 6, 5, 11, 0, 0, 0, time.UTC), false, true, false},
		{"spring holiday 2013", time.Date(2013, 5, 27, 11, 0, 0, 0, time.UTC), false, true, false},
		{"platinum jubilee", time.Date(2022, 6, 3, 11, 0, 0, 0, time.UTC), false, true, false},
		{"state funeral", time.Date(2022, 9, 19, 11, 0, 0, 0, time.UTC), false, true, false},
		{"coronation", time.Date(2023, 5, 8, 11, 0, 0, 0, time.UTC), false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := b.Build(tt.ts)
			assert.Equal(t, tt.weekend, f.IsWeekend, "weekend")
			assert.Equal(t, tt.holiday, f.IsHoliday, "holiday")
			assert.Equal(t, tt.rushHour, f.IsRushHour, "rush hour")
		})
	}
}

func TestFeatureBuilder_Cyclical(t *testing.T) {
	b := dataset.NewFeatureBuilder(london(t), nil)

	// Monday 15 January, 06:00 GMT.
	f := b.Build(time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC))
	assert.InDelta(t, 1, f.HourSin, 1e-9)
	assert.InDelta(t, 0, f.HourCos, 1e-9)
	assert.InDelta(t, 0.5, f.MonthSin, 1e-9)
	assert.InDelta(t, math.Sqrt(3)/2, f.MonthCos, 1e-9)
	assert.InDelta(t, 0, f.DayOfWeekSin, 1e-9)
	assert.InDelta(t, 1, f.DayOfWeekCos, 1e-9)
	assert.InDelta(t, math.Sin(2*math.Pi*15/365.25), f.DayOfYearSin, 1e-9)
	assert.False(t, f.IsRushHour)
}
