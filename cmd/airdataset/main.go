// Command airdataset builds the London air-quality modelling dataset. Each
// subcommand runs one batch stage; "run" executes them all in order.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/londonair/airdataset/internal/config"
	"github.com/londonair/airdataset/internal/provider/resilience"
	"github.com/londonair/airdataset/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "airdataset"

// app carries what every stage needs.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	registry  *resilience.Registry
	telemetry *telemetry.Provider
}

var current = &app{}

var rootCmd = &cobra.Command{
	Use:   "airdataset",
	Short: "Build the London air-quality modelling dataset",
	Long: `airdataset fetches LAQN air-quality series and Open-Meteo weather for
selected London monitoring sites, joins them with DfT traffic counts and
writes a model-ready table. Paths and tuning come from the environment
(optionally a .env file).`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		current.log.Error().Err(err).Msg("stage failed")
		stop()
		os.Exit(1) //nolint:gocritic // deferred stop already ran
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		current.log = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return err
	}

	current.cfg = cfg
	current.log = newLogger(cfg)
	current.registry = resilience.NewRegistry()

	current.log.Info().
		Str("build_time", BuildTime).
		Str("stage", cmd.Name()).
		Str("data_dir", cfg.Paths.DataDir).
		Msg("starting airdataset")

	tcfg := telemetry.ConfigFromEnv(serviceName, Version)
	tcfg.Stage = cmd.Name()
	tp, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return err
	}
	current.telemetry = tp
	if tp.Enabled() {
		current.log.Info().
			Str("otlp_endpoint", tcfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if current.registry != nil && current.registry.ProviderCount() > 0 {
		current.registry.LogSummary(current.log)
	}
	if current.telemetry == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := current.telemetry.Shutdown(shutdownCtx); err != nil {
		current.log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := zerolog.New(os.Stdout)
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}
