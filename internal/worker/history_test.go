package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/airquality/laqn"
	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/worker"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	perCall  int
	source   laqn.Source
	failWhen func(laqn.WindowRequest) error
	enough   map[string]bool
}

func (f *fakeFetcher) FetchWindow(_ context.Context, req laqn.WindowRequest) (laqn.WindowResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failWhen != nil {
		if err := f.failWhen(req); err != nil {
			return laqn.WindowResult{}, err
		}
	}

	records := make([]airquality.RawMeasurement, 0, f.perCall)
	for i := 0; i < f.perCall; i++ {
		records = append(records, airquality.RawMeasurement{
			SiteCode:      req.SiteCode,
			SiteName:      req.SiteName,
			PollutantName: req.Pollutant.Name,
			SeriesCode:    req.Pollutant.Species,
			Timestamp:     req.Window.Start.Add(time.Duration(i) * time.Hour),
			Value:         float64(i),
		})
	}
	source := f.source
	if source == "" {
		source = laqn.SourceNetwork
	}
	return laqn.WindowResult{Records: records, Source: source}, nil
}

func (f *fakeFetcher) HasEnoughData(_ context.Context, site airquality.OverlapRecord, _ []airquality.Pollutant, _ int) (bool, error) {
	ok, found := f.enough[site.SiteCode]
	return !found || ok, nil
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]airquality.RawMeasurement
	err     error
}

func (s *memorySink) Write(records []airquality.RawMeasurement) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]airquality.RawMeasurement(nil), records...))
	return nil
}

func (s *memorySink) total() int {
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func site2020(code string) airquality.OverlapRecord {
	return airquality.OverlapRecord{
		SiteCode:     code,
		SiteName:     "Site " + code,
		OverlapStart: date(2020, 1, 1),
		OverlapEnd:   date(2020, 12, 31),
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHistoryJob(t *testing.T, cfg worker.FetchConfig, fetcher worker.WindowFetcher, sink worker.RecordSink) *worker.HistoryJob {
	t.Helper()
	job, err := worker.NewHistoryJob(worker.HistoryJobConfig{
		Config:  cfg,
		Fetcher: fetcher,
		Sink:    sink,
		Logger:  zerolog.Nop(),
		Sleep:   noSleep,
	})
	require.NoError(t, err)
	return job
}

func TestNewHistoryJob_RequiresCollaborators(t *testing.T) {
	_, err := worker.NewHistoryJob(worker.HistoryJobConfig{Sink: &memorySink{}})
	assert.Error(t, err)

	_, err = worker.NewHistoryJob(worker.HistoryJobConfig{Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestHistoryJob_Run_FetchesAndFlushes(t *testing.T) {
	fetcher := &fakeFetcher{perCall: 3}
	sink := &memorySink{}
	cfg := worker.DefaultFetchConfig()
	cfg.FlushEvery = 25

	job := newHistoryJob(t, cfg, fetcher, sink)

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1"), site2020("KC1")})
	require.NoError(t, err)

	// 366 days in 90-day windows is 5 windows, for 2 pollutants and 2 sites.
	assert.Equal(t, 20, result.Windows)
	assert.Equal(t, 20, result.WindowsNetwork)
	assert.Equal(t, 0, result.WindowsFailed)
	assert.Equal(t, 60, result.Records)
	assert.Equal(t, 2, result.Flushes)
	assert.Equal(t, 20, fetcher.calls)
	assert.Equal(t, 60, sink.total())
	assert.Equal(t, 2, result.Sites)
}

func TestHistoryJob_Run_FinalFlushBelowThreshold(t *testing.T) {
	sink := &memorySink{}
	job := newHistoryJob(t, worker.DefaultFetchConfig(), &fakeFetcher{perCall: 1}, sink)

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Flushes)
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 10)
}

func TestHistoryJob_Run_SkipsFailedWindows(t *testing.T) {
	fetcher := &fakeFetcher{
		perCall: 2,
		failWhen: func(req laqn.WindowRequest) error {
			if req.Pollutant.Species == airquality.SpeciesPM25 && req.Window.Start.Equal(date(2020, 1, 1)) {
				return &resilience.ServerError{StatusCode: 503}
			}
			if req.Pollutant.Species == airquality.SpeciesNO2 && req.Window.Start.Equal(date(2020, 3, 31)) {
				return &laqn.StatusError{StatusCode: 400}
			}
			return nil
		},
	}
	sink := &memorySink{}
	job := newHistoryJob(t, worker.DefaultFetchConfig(), fetcher, sink)

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Windows)
	assert.Equal(t, 2, result.WindowsFailed)
	assert.Equal(t, 16, result.Records)
	require.Len(t, result.Errors, 2)

	transient := map[string]bool{}
	for _, e := range result.Errors {
		transient[e.Pollutant] = e.Transient
	}
	assert.True(t, transient["PM2.5"])
	assert.False(t, transient["NO2"])
}

func TestHistoryJob_Run_CachedWindowsDoNotSleep(t *testing.T) {
	var sleeps atomic.Int32
	job, err := worker.NewHistoryJob(worker.HistoryJobConfig{
		Config:  worker.FetchConfig{RequestDelay: time.Second},
		Fetcher: &fakeFetcher{perCall: 1, source: laqn.SourceCache},
		Sink:    &memorySink{},
		Logger:  zerolog.Nop(),
		Sleep: func(context.Context, time.Duration) error {
			sleeps.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.NoError(t, err)

	assert.Equal(t, 10, result.WindowsCached)
	assert.Equal(t, 0, result.WindowsNetwork)
	assert.Equal(t, int32(0), sleeps.Load())
}

func TestHistoryJob_Run_ClampsToConfiguredRange(t *testing.T) {
	fetcher := &fakeFetcher{perCall: 1}
	cfg := worker.FetchConfig{
		StartDate: date(2020, 12, 1),
		EndDate:   date(2021, 6, 1),
	}
	job := newHistoryJob(t, cfg, fetcher, &memorySink{})

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.NoError(t, err)

	// Only December 2020 remains: one window per pollutant.
	assert.Equal(t, 2, result.Windows)
}

func TestHistoryJob_Run_SkipsSitesOutsideRange(t *testing.T) {
	fetcher := &fakeFetcher{perCall: 1}
	cfg := worker.FetchConfig{StartDate: date(2022, 1, 1), EndDate: date(2023, 1, 1)}
	job := newHistoryJob(t, cfg, fetcher, &memorySink{})

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SitesSkipped)
	assert.Equal(t, 0, fetcher.calls)
}

func TestHistoryJob_Run_SampleCheck(t *testing.T) {
	fetcher := &fakeFetcher{perCall: 1, enough: map[string]bool{"BAD": false}}
	cfg := worker.DefaultFetchConfig()
	cfg.SampleCheck = true
	job := newHistoryJob(t, cfg, fetcher, &memorySink{})

	result, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1"), site2020("BAD")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SitesSkipped)
	assert.Equal(t, 10, result.Windows)
}

func TestHistoryJob_Run_SinkErrorStopsRun(t *testing.T) {
	sinkErr := errors.New("disk full")
	job := newHistoryJob(t, worker.DefaultFetchConfig(), &fakeFetcher{perCall: 1}, &memorySink{err: sinkErr})

	_, err := job.Run(context.Background(), []airquality.OverlapRecord{site2020("MY1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
}

func TestHistoryJob_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newHistoryJob(t, worker.DefaultFetchConfig(), &fakeFetcher{perCall: 1}, &memorySink{})

	_, err := job.Run(ctx, []airquality.OverlapRecord{site2020("MY1"), site2020("KC1")})
	assert.ErrorIs(t, err, context.Canceled)
}
