package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// InstrumentationName names the meter used by the workers.
const InstrumentationName = "github.com/chriscow/livekit-translate-go"

// MeterConfig configures OTLP metric export.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP HTTP endpoint host:port. Empty disables export.
	Endpoint string
	Insecure bool
	Interval time.Duration
}

// InitMeter installs an OTLP meter provider as the global provider. With no
// endpoint the global no-op provider is kept. The returned function flushes
// and stops the exporter.
func InitMeter(ctx context.Context, cfg MeterConfig, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("Meter initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("endpoint", cfg.Endpoint))

	return mp.Shutdown, nil
}

// Metrics holds the OpenTelemetry instruments of the translation pipeline.
type Metrics struct {
	sessions     metric.Int64Counter
	chunks       metric.Int64Counter
	sinkFailures metric.Int64Counter
	firstChunk   metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	sessions, err := meter.Int64Counter("translate.sessions",
		metric.WithDescription("Translation sessions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating translate.sessions counter: %w", err)
	}

	chunks, err := meter.Int64Counter("translate.chunks",
		metric.WithDescription("Translation chunks relayed to sinks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating translate.chunks counter: %w", err)
	}

	sinkFailures, err := meter.Int64Counter("translate.sink_failures",
		metric.WithDescription("Messages a sink dropped or rejected"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating translate.sink_failures counter: %w", err)
	}

	firstChunk, err := meter.Float64Histogram("translate.first_chunk",
		metric.WithDescription("Time from transcript to first translated chunk"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating translate.first_chunk histogram: %w", err)
	}

	return &Metrics{
		sessions:     sessions,
		chunks:       chunks,
		sinkFailures: sinkFailures,
		firstChunk:   firstChunk,
	}, nil
}

// RecordSession counts a session with outcome "started", "finalized" or "failed".
func (m *Metrics) RecordSession(ctx context.Context, language, outcome string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("outcome", outcome),
	))
}

// RecordChunk counts one relayed chunk.
func (m *Metrics) RecordChunk(ctx context.Context, language string) {
	m.chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// RecordSinkFailure counts one sink failure.
func (m *Metrics) RecordSinkFailure(ctx context.Context, sink string) {
	m.sinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordFirstChunk records time to first chunk.
func (m *Metrics) RecordFirstChunk(ctx context.Context, language string, d time.Duration) {
	m.firstChunk.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("language", language)))
}
