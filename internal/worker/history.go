package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/airquality/laqn"
	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/telemetry"
)

// WindowFetcher retrieves the records of one fetch window.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, req laqn.WindowRequest) (laqn.WindowResult, error)
	HasEnoughData(ctx context.Context, site airquality.OverlapRecord, pollutants []airquality.Pollutant, minValues int) (bool, error)
}

// RecordSink persists batches of fetched records.
type RecordSink interface {
	Write(records []airquality.RawMeasurement) error
}

// HistoryJob downloads the hourly history of every selected site.
//
// Sites are spread over a bounded pool of workers. Each worker returns the
// records of one site and only the collecting goroutine touches the pending
// batch and the sink.
type HistoryJob struct {
	config  FetchConfig
	fetcher WindowFetcher
	sink    RecordSink
	logger  zerolog.Logger
	sleep   func(context.Context, time.Duration) error
	tracer  trace.Tracer
	metrics *fetchMetrics
}

// HistoryJobConfig holds configuration for creating a HistoryJob.
type HistoryJobConfig struct {
	Config  FetchConfig
	Fetcher WindowFetcher
	Sink    RecordSink
	Logger  zerolog.Logger

	// Sleep waits between requests. Default: a context-aware timer.
	Sleep func(context.Context, time.Duration) error
}

// NewHistoryJob creates a new fetch job.
func NewHistoryJob(cfg HistoryJobConfig) (*HistoryJob, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("history job: fetcher is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("history job: sink is required")
	}
	metrics, err := newFetchMetrics()
	if err != nil {
		return nil, fmt.Errorf("history job metrics: %w", err)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &HistoryJob{
		config:  cfg.Config.withDefaults(),
		fetcher: cfg.Fetcher,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		sleep:   sleep,
		tracer:  telemetry.Tracer(instrumentationName),
		metrics: metrics,
	}, nil
}

// HistoryResult contains the result of a fetch run.
type HistoryResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Sites        int
	SitesSkipped int

	Windows        int
	WindowsNetwork int
	WindowsCached  int
	WindowsFailed  int

	Records int
	Flushes int
	Errors  []WindowError
}

// WindowError records a window that was skipped.
type WindowError struct {
	SiteCode  string
	Pollutant string
	Window    airquality.Window
	Transient bool
	Error     string
}

type siteResult struct {
	site    airquality.OverlapRecord
	records []airquality.RawMeasurement
	skipped bool

	windows, network, cached int
	errors                   []WindowError
}

// Run fetches every site and flushes records to the sink in batches.
// Window failures are logged and skipped; a sink failure or cancellation
// stops the run and is returned.
func (j *HistoryJob) Run(ctx context.Context, sites []airquality.OverlapRecord) (*HistoryResult, error) {
	startTime := time.Now()
	result := &HistoryResult{
		StartTime: startTime,
		Sites:     len(sites),
	}

	j.logger.Info().
		Int("sites", len(sites)).
		Int("concurrency", j.config.Concurrency).
		Int("chunk_days", j.config.ChunkDays).
		Msg("starting historical fetch")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sitesChan := make(chan airquality.OverlapRecord, len(sites))
	resultsChan := make(chan siteResult, len(sites))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.fetchWorker(runCtx, sitesChan, resultsChan)
		}()
	}

	for _, s := range sites {
		sitesChan <- s
	}
	close(sitesChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var (
		pending  []airquality.RawMeasurement
		flushErr error
	)
	flush := func() {
		if flushErr != nil || len(pending) == 0 {
			return
		}
		if err := j.sink.Write(pending); err != nil {
			flushErr = err
			cancel()
			return
		}
		result.Flushes++
		j.logger.Debug().Int("records", len(pending)).Msg("flushed records")
		pending = nil
	}

	// Results arrive in completion order, not submission order.
	for sr := range resultsChan {
		if sr.skipped {
			result.SitesSkipped++
		}
		result.Windows += sr.windows
		result.WindowsNetwork += sr.network
		result.WindowsCached += sr.cached
		result.WindowsFailed += len(sr.errors)
		result.Records += len(sr.records)
		result.Errors = append(result.Errors, sr.errors...)

		pending = append(pending, sr.records...)
		j.logger.Info().
			Str("site_code", sr.site.SiteCode).
			Int("records", len(sr.records)).
			Int("total_records", result.Records).
			Msg("site fetched")

		if len(pending) >= j.config.FlushEvery {
			flush()
		}
	}
	flush()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("records", result.Records).
		Int("windows", result.Windows).
		Int("windows_network", result.WindowsNetwork).
		Int("windows_cached", result.WindowsCached).
		Int("windows_failed", result.WindowsFailed).
		Int("sites_skipped", result.SitesSkipped).
		Msg("historical fetch completed")

	if flushErr != nil {
		return result, fmt.Errorf("flush records: %w", flushErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (j *HistoryJob) fetchWorker(ctx context.Context, sites <-chan airquality.OverlapRecord, results chan<- siteResult) {
	for site := range sites {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.fetchSite(ctx, site)
		}
	}
}

func (j *HistoryJob) fetchSite(ctx context.Context, site airquality.OverlapRecord) siteResult {
	ctx, span := j.tracer.Start(ctx, "fetch site", trace.WithAttributes(
		attribute.String("site.code", site.SiteCode),
	))
	defer span.End()

	result := siteResult{site: site}
	logger := j.logger.With().Str("site_code", site.SiteCode).Logger()

	windows := Chunk(j.siteRange(site))
	if len(windows) == 0 {
		logger.Warn().Msg("site overlap lies outside the fetch range")
		result.skipped = true
		j.metrics.site(ctx, "skipped")
		return result
	}

	if j.config.SampleCheck {
		ok, err := j.fetcher.HasEnoughData(ctx, site, j.config.Pollutants, j.config.SampleMinValues)
		if err != nil {
			logger.Warn().Err(err).Msg("sample check failed, skipping site")
		}
		if err != nil || !ok {
			result.skipped = true
			j.metrics.site(ctx, "skipped")
			return result
		}
	}

	for _, p := range j.config.Pollutants {
		for _, w := range windows {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "cancelled")
				return result
			}

			result.windows++
			wr, err := j.fetcher.FetchWindow(ctx, laqn.WindowRequest{
				SiteCode:  site.SiteCode,
				SiteName:  site.SiteName,
				Pollutant: p,
				Window:    w,
			})
			if err != nil {
				transient := resilience.IsTransient(err)
				logger.Warn().
					Err(err).
					Str("pollutant", p.Name).
					Time("window_start", w.Start).
					Time("window_end", w.End).
					Bool("transient", transient).
					Msg("skipping window")
				result.errors = append(result.errors, WindowError{
					SiteCode:  site.SiteCode,
					Pollutant: p.Name,
					Window:    w,
					Transient: transient,
					Error:     err.Error(),
				})
				j.metrics.window(ctx, "failed", 0)
				continue
			}

			result.records = append(result.records, wr.Records...)
			j.metrics.window(ctx, string(wr.Source), len(wr.Records))
			if wr.Source == laqn.SourceNetwork {
				result.network++
				if err := j.sleep(ctx, j.config.RequestDelay); err != nil {
					return result
				}
			} else {
				result.cached++
			}
		}
	}

	span.SetAttributes(attribute.Int("records", len(result.records)))
	j.metrics.site(ctx, "fetched")
	return result
}

// siteRange narrows the configured range to the site's overlap window.
func (j *HistoryJob) siteRange(site airquality.OverlapRecord) (time.Time, time.Time, int) {
	start, end := j.config.StartDate, j.config.EndDate
	if !site.OverlapStart.IsZero() && site.OverlapStart.After(start) {
		start = site.OverlapStart
	}
	if !site.OverlapEnd.IsZero() && site.OverlapEnd.Before(end) {
		end = site.OverlapEnd
	}
	return start, end, j.config.ChunkDays
}
