package worker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/worker"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestChunk_CoversRangeExactly(t *testing.T) {
	start, end := date(2010, 1, 1), date(2025, 6, 30)

	windows := worker.Chunk(start, end, 90)
	require.NotEmpty(t, windows)

	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, end, windows[len(windows)-1].End)

	totalDays := 0
	for i, w := range windows {
		assert.False(t, w.End.Before(w.Start), "window %d inverted", i)
		assert.LessOrEqual(t, w.Days(), 90)
		if i < len(windows)-1 {
			assert.Equal(t, 90, w.Days(), "only the last window may be shorter")
			assert.Equal(t, w.End.AddDate(0, 0, 1), windows[i+1].Start, "gap or overlap after window %d", i)
		}
		totalDays += w.Days()
	}

	expected := int(end.Sub(start).Hours()/24) + 1
	assert.Equal(t, expected, totalDays)
}

func TestChunk_Edges(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		days    int
		windows int
	}{
		{"single day", date(2020, 1, 1), date(2020, 1, 1), 90, 1},
		{"exact multiple", date(2020, 1, 1), date(2020, 1, 20), 10, 2},
		{"short tail", date(2020, 1, 1), date(2020, 1, 21), 10, 3},
		{"inverted", date(2020, 2, 1), date(2020, 1, 1), 90, 0},
		{"zero size", date(2020, 1, 1), date(2020, 2, 1), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, worker.Chunk(tt.start, tt.end, tt.days), tt.windows)
		})
	}
}

func TestChunk_TruncatesToDays(t *testing.T) {
	windows := worker.Chunk(
		time.Date(2020, 1, 1, 13, 30, 0, 0, time.UTC),
		time.Date(2020, 1, 5, 8, 0, 0, 0, time.UTC),
		90,
	)
	require.Len(t, windows, 1)
	assert.Equal(t, date(2020, 1, 1), windows[0].Start)
	assert.Equal(t, date(2020, 1, 5), windows[0].End)
}

func TestDefaultFetchConfig(t *testing.T) {
	cfg := worker.DefaultFetchConfig()

	assert.Equal(t, 90, cfg.ChunkDays)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 10000, cfg.FlushEvery)
	assert.Equal(t, 100, cfg.SampleMinValues)
	assert.False(t, cfg.SampleCheck)
	assert.Len(t, cfg.Pollutants, 2)
	assert.Equal(t, date(2010, 1, 1), cfg.StartDate)
}

func TestDefaultWeatherConfig(t *testing.T) {
	cfg := worker.DefaultWeatherConfig()

	assert.Equal(t, 5*time.Second, cfg.RequestDelay)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.BatchPause)
	assert.Equal(t, date(2025, 5, 29), cfg.EndDate)
}
