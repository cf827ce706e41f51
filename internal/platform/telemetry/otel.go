package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mumahendras3/packer-server/internal/config"
)

// InstrumentationName identifies this service's meters, tracers and loggers.
const InstrumentationName = "github.com/mumahendras3/packer-server"

const (
	batchTimeout   = 5 * time.Second
	metricInterval = time.Minute
)

// Providers is the result of Setup.
type Providers struct {
	// MeterProvider is a no-op provider when telemetry is disabled.
	MeterProvider metric.MeterProvider

	// LogHandler bridges slog records into OpenTelemetry logs. It is nil
	// when telemetry is disabled.
	LogHandler slog.Handler

	shutdownFuncs []func(context.Context) error
}

// Shutdown flushes and stops every provider. Errors are joined.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	for _, fn := range p.shutdownFuncs {
		err = errors.Join(err, fn(ctx))
	}
	p.shutdownFuncs = nil
	return err
}

// Setup bootstraps the OpenTelemetry pipeline and installs the providers
// as globals. Exporters write to w, or to stderr when w is nil, so they
// never interleave with the JSON log on stdout.
func Setup(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (*Providers, error) {
	p := &Providers{MeterProvider: noop.NewMeterProvider()}
	if !cfg.Enabled {
		return p, nil
	}
	if w == nil {
		w = os.Stderr
	}

	// Partial setups are torn down on error.
	fail := func(err error) (*Providers, error) {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fail(fmt.Errorf("create trace exporter: %w", err))
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(batchTimeout)),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return fail(fmt.Errorf("create metric exporter: %w", err))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricInterval))),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)
	p.MeterProvider = meterProvider

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return fail(fmt.Errorf("create log exporter: %w", err))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)
	p.LogHandler = otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(loggerProvider))

	return p, nil
}
