package worker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/londonair/airdataset/internal/telemetry"
)

const instrumentationName = "github.com/londonair/airdataset/internal/worker"

// fetchMetrics holds the OpenTelemetry instruments of the fetch job.
type fetchMetrics struct {
	windows metric.Int64Counter
	records metric.Int64Counter
	sites   metric.Int64Counter
}

func newFetchMetrics() (*fetchMetrics, error) {
	meter := telemetry.Meter(instrumentationName)

	windows, err := meter.Int64Counter(
		"airdataset.fetch.windows",
		metric.WithDescription("Fetch windows processed, by outcome"),
		metric.WithUnit("{window}"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"airdataset.fetch.records",
		metric.WithDescription("Measurements extracted from fetched windows"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	sites, err := meter.Int64Counter(
		"airdataset.fetch.sites",
		metric.WithDescription("Sites processed, by outcome"),
		metric.WithUnit("{site}"),
	)
	if err != nil {
		return nil, err
	}

	return &fetchMetrics{windows: windows, records: records, sites: sites}, nil
}

func (m *fetchMetrics) window(ctx context.Context, outcome string, records int) {
	m.windows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if records > 0 {
		m.records.Add(ctx, int64(records))
	}
}

func (m *fetchMetrics) site(ctx context.Context, outcome string) {
	m.sites.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
