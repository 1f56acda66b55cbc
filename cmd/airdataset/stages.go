package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/airquality/laqn"
	"github.com/londonair/airdataset/internal/database"
	"github.com/londonair/airdataset/internal/dataset"
	"github.com/londonair/airdataset/internal/geomatch"
	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/rawcache"
	"github.com/londonair/airdataset/internal/traffic"
	"github.com/londonair/airdataset/internal/weather/openmeteo"
	"github.com/londonair/airdataset/internal/worker"
)

// stage is one batch step of the pipeline.
type stage struct {
	name  string
	short string
	run   func(ctx context.Context, a *app) error
}

var stages = []stage{
	{"select-sites", "Rank LAQN sites by NO2/PM2.5 overlap and keep the best", selectSites},
	{"match-traffic", "Match selected sites to their nearest DfT count point", matchTraffic},
	{"fetch-aq", "Download hourly air-quality history for the selected sites", fetchAirQuality},
	{"fetch-weather", "Download hourly weather for the matched sites", fetchWeather},
	{"reshape-aq", "Pivot raw air-quality parts to one row per site and hour", reshapeAirQuality},
	{"prepare-weather", "Combine raw weather files into one table", prepareWeather},
	{"build", "Join, engineer features and write the model-ready table", buildDataset},
}

func init() {
	for _, s := range stages {
		rootCmd.AddCommand(&cobra.Command{
			Use:   s.name,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE:  runStage(s),
		})
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "export-db",
		Short: "Rebuild the model-ready table and copy it into PostgreSQL",
		Args:  cobra.NoArgs,
		RunE:  runStage(stage{name: "export-db", run: exportDatabase}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run every stage from select-sites to build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range stages {
				if err := runStage(s)(cmd, args); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func runStage(s stage) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		start := time.Now()
		log := current.log.With().Str("stage", s.name).Logger()
		log.Info().Msg("stage started")

		if err := s.run(cmd.Context(), current); err != nil {
			var missing *dataset.MissingSourceFileError
			if errors.As(err, &missing) {
				log.Error().Str("path", missing.Path).Msg("missing source file")
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}

		log.Info().Dur("duration", time.Since(start)).Msg("stage completed")
		return nil
	}
}

func selectSites(ctx context.Context, a *app) error {
	client := a.laqnClient(nil)
	sites, err := client.FetchSites(ctx)
	if err != nil {
		return fmt.Errorf("fetch site listing: %w", err)
	}

	selector := airquality.NewSelector(airquality.SelectorConfig{
		MinYears: airquality.MinOverlap(a.cfg.SelectMinYears),
		TopN:     a.cfg.SelectTopN,
		Logger:   a.log,
	})
	selected := selector.Select(sites)
	if len(selected) == 0 {
		return fmt.Errorf("no site has %.1f years of overlap: %w", a.cfg.SelectMinYears, airquality.ErrSiteNotFound)
	}

	for _, s := range selected {
		a.log.Info().
			Str("site_code", s.SiteCode).
			Str("site_name", s.SiteName).
			Float64("overlap_years", s.OverlapYears).
			Msg("site selected")
	}
	return writeFile(a.cfg.Paths.SelectedSites, func(w io.Writer) error {
		return airquality.WriteSelectedSites(w, selected)
	})
}

func matchTraffic(_ context.Context, a *app) error {
	p := a.cfg.Paths
	if err := dataset.RequireFiles(p.SelectedSites, p.CountPoints); err != nil {
		return err
	}

	sites, err := readSelectedSites(p.SelectedSites)
	if err != nil {
		return err
	}
	var points []traffic.CountPoint
	if err := readFile(p.CountPoints, func(r io.Reader) (err error) {
		points, err = traffic.ReadCountPoints(r)
		return err
	}); err != nil {
		return err
	}

	matches, err := traffic.MatchSites(sites, points, geomatch.NewIndexedMatcher())
	if err != nil {
		return err
	}
	for _, m := range matches {
		a.log.Info().
			Str("site_code", m.SiteCode).
			Str("count_point_id", m.CountPointID).
			Float64("distance_km", m.DistanceKm).
			Str("road_type", m.RoadType).
			Msg("site matched")
	}
	return writeFile(p.MatchedSites, func(w io.Writer) error {
		return traffic.WriteMatches(w, matches)
	})
}

func fetchAirQuality(ctx context.Context, a *app) error {
	p := a.cfg.Paths
	if err := dataset.RequireFiles(p.SelectedSites); err != nil {
		return err
	}
	sites, err := readSelectedSites(p.SelectedSites)
	if err != nil {
		return err
	}

	cache, err := rawcache.New(rawcache.Config{
		Dir:             p.Cache,
		EmptyRetryAfter: a.cfg.EmptyRetryAfter,
		Logger:          a.log,
	})
	if err != nil {
		return err
	}
	sink, err := dataset.NewPartSink(p.AQParts, a.log)
	if err != nil {
		return err
	}

	fetchCfg := worker.DefaultFetchConfig()
	fetchCfg.StartDate = a.cfg.FetchStart
	fetchCfg.EndDate = a.cfg.FetchEnd
	fetchCfg.ChunkDays = a.cfg.FetchChunkDays
	fetchCfg.Concurrency = a.cfg.FetchWorkers
	fetchCfg.FlushEvery = a.cfg.FetchFlushEvery
	fetchCfg.RequestDelay = a.cfg.FetchRequestDelay
	fetchCfg.SampleCheck = a.cfg.FetchSampleCheck

	job, err := worker.NewHistoryJob(worker.HistoryJobConfig{
		Config:  fetchCfg,
		Fetcher: a.laqnClient(cache),
		Sink:    sink,
		Logger:  a.log.With().Str("run_id", sink.RunID()).Logger(),
	})
	if err != nil {
		return err
	}
	if _, err := job.Run(ctx, sites); err != nil {
		return err
	}

	n, err := dataset.ExportRawCSV(p.AQParts, p.AQRawCSV)
	if err != nil {
		return fmt.Errorf("write raw csv copy: %w", err)
	}
	a.log.Info().Int("records", n).Str("path", p.AQRawCSV).Msg("raw csv copy written")
	return nil
}

func fetchWeather(ctx context.Context, a *app) error {
	p := a.cfg.Paths
	if err := dataset.RequireFiles(p.MatchedSites); err != nil {
		return err
	}
	var matches []traffic.SiteMatch
	if err := readFile(p.MatchedSites, func(r io.Reader) (err error) {
		matches, err = traffic.ReadMatches(r)
		return err
	}); err != nil {
		return err
	}

	rc := resilience.DefaultClientConfig(openmeteo.ProviderName)
	rc.Timeout = a.cfg.RequestTimeout
	rc.MaxRetries = a.cfg.MaxRetries
	rc.Registry = a.registry

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    a.cfg.WeatherBaseURL,
		HTTPClient: resilience.NewClient(rc),
		Logger:     a.log,
	})

	job, err := worker.NewWeatherJob(worker.WeatherJobConfig{
		Config: worker.WeatherConfig{
			OutputDir:    p.WeatherDir,
			StartDate:    a.cfg.WeatherStart,
			EndDate:      a.cfg.WeatherEnd,
			RequestDelay: a.cfg.WeatherRequestDelay,
			BatchSize:    a.cfg.WeatherBatchSize,
			BatchPause:   a.cfg.WeatherBatchPause,
		},
		Fetcher: client,
		Logger:  a.log,
	})
	if err != nil {
		return err
	}
	_, err = job.Run(ctx, matches)
	return err
}

func reshapeAirQuality(_ context.Context, a *app) error {
	_, err := dataset.ReshapeParts(a.cfg.Paths.AQParts, a.cfg.Paths.WideAQ, a.log)
	return err
}

func prepareWeather(ctx context.Context, a *app) error {
	loc, err := time.LoadLocation(a.cfg.TimeZone)
	if err != nil {
		return err
	}
	var filter *dataset.WeatherFilter
	if a.cfg.WeatherFilter {
		filter = dataset.DefaultWeatherFilter(loc)
	}

	rows, stats, err := dataset.CombineWeather(ctx, dataset.CombineConfig{
		Dir:    a.cfg.Paths.WeatherDir,
		Filter: filter,
		Logger: a.log,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return dataset.ErrEmptyResult
	}

	a.log.Info().
		Int("files", stats.Files).
		Int("failed_files", stats.Failed).
		Int("dropped_rows", stats.Dropped).
		Int("filtered_rows", stats.Filtered).
		Int("rows", stats.Rows).
		Bool("filter", filter != nil).
		Msg("weather combined")
	return dataset.WriteWeather(a.cfg.Paths.WeatherWide, rows)
}

func buildDataset(ctx context.Context, a *app) error {
	table, err := assembleTable(a)
	if err != nil {
		return err
	}

	p := a.cfg.Paths
	if err := table.WriteParquet(p.Final); err != nil {
		return fmt.Errorf("write final table: %w", err)
	}
	if err := table.WriteCSVFile(p.FinalCSV); err != nil {
		return fmt.Errorf("write final csv copy: %w", err)
	}
	a.log.Info().
		Int("rows", len(table.Rows)).
		Int("columns", len(table.Columns)).
		Str("path", p.Final).
		Msg("model-ready dataset written")

	if a.cfg.DBExportEnabled {
		return exportTable(ctx, a, table)
	}
	return nil
}

func exportDatabase(ctx context.Context, a *app) error {
	table, err := assembleTable(a)
	if err != nil {
		return err
	}
	return exportTable(ctx, a, table)
}

func assembleTable(a *app) (*dataset.Table, error) {
	p := a.cfg.Paths
	if err := dataset.RequireFiles(p.WideAQ, p.WeatherWide, p.MatchedSites, p.AADF); err != nil {
		return nil, err
	}

	aq, err := dataset.ReadWide(p.WideAQ)
	if err != nil {
		return nil, err
	}
	wx, err := dataset.ReadWeather(p.WeatherWide)
	if err != nil {
		return nil, err
	}
	var matches []traffic.SiteMatch
	if err := readFile(p.MatchedSites, func(r io.Reader) (err error) {
		matches, err = traffic.ReadMatches(r)
		return err
	}); err != nil {
		return nil, err
	}
	var aadf []traffic.AADF
	if err := readFile(p.AADF, func(r io.Reader) (err error) {
		aadf, err = traffic.ReadAADF(r)
		return err
	}); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(a.cfg.TimeZone)
	if err != nil {
		return nil, err
	}
	assembler, err := dataset.NewAssembler(dataset.AssemblerConfig{
		Location:  loc,
		RushHours: a.cfg.RushHours,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}

	rows, _, err := assembler.Build(dataset.Inputs{
		AirQuality: aq,
		Weather:    wx,
		Matches:    matches,
		AADF:       traffic.NewAADFIndex(aadf),
	})
	if err != nil {
		return nil, err
	}
	return dataset.NewTable(rows), nil
}

func exportTable(ctx context.Context, a *app, table *dataset.Table) error {
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := database.NewExporter(pool).Export(ctx, dbConfig.Table, table)
	if err != nil {
		return err
	}
	a.log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Str("table", dbConfig.Table).
		Int64("rows", n).
		Msg("dataset exported")
	return nil
}

func (a *app) laqnClient(cache *rawcache.Cache) *laqn.Client {
	return laqn.NewClient(laqn.ClientConfig{
		BaseURL:    a.cfg.AQBaseURL,
		Timeout:    a.cfg.RequestTimeout,
		MaxRetries: a.cfg.MaxRetries,
		Registry:   a.registry,
		Cache:      cache,
		Logger:     a.log,
	})
}

func readSelectedSites(path string) ([]airquality.OverlapRecord, error) {
	var sites []airquality.OverlapRecord
	err := readFile(path, func(r io.Reader) (err error) {
		sites, err = airquality.ReadSelectedSites(r)
		return err
	})
	return sites, err
}

func readFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &dataset.MissingSourceFileError{Path: path}
		}
		return err
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// writeFile writes through a temporary file so a failed stage leaves no
// partial artifact.
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
