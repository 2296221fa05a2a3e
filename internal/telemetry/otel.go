package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	ServiceName    = "mailpulse"
	serviceVersion = "1.0.0"
)

// Options configures the telemetry pipeline.
type Options struct {
	// Endpoint is the OTLP collector host. Empty keeps telemetry in process.
	Endpoint string
	// Headers are sent with every OTLP export.
	Headers map[string]string
	// Insecure disables TLS towards the collector.
	Insecure bool
	// LogWriter receives log records when no endpoint is set. Nil drops them.
	LogWriter io.Writer
}

// Providers exposes the installed providers.
type Providers struct {
	Tracer *trace.TracerProvider
	Meter  *metric.MeterProvider
	Logger *log.LoggerProvider
}

// LoggerProvider returns the log provider as the API interface.
func (p Providers) LoggerProvider() otellog.LoggerProvider {
	return p.Logger
}

// Setup bootstraps the OpenTelemetry pipeline and installs the global
// providers. If it does not return an error, make sure to call shutdown
// for proper cleanup.
func Setup(ctx context.Context, opts Options) (providers Providers, shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	otel.SetTextMapPropagator(newPropagator())

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", serviceVersion),
		))
	if err != nil {
		handleErr(err)
		return
	}

	tracerProvider, err := newTraceProvider(ctx, res, opts)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, res, opts)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, res, opts)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	providers = Providers{Tracer: tracerProvider, Meter: meterProvider, Logger: loggerProvider}
	return
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	)
}

func newTraceProvider(ctx context.Context, res *resource.Resource, opts Options) (*trace.TracerProvider, error) {
	providerOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithIDGenerator(xray.NewIDGenerator()),
	}
	if opts.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(opts.Endpoint),
			otlptracehttp.WithHeaders(opts.Headers),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if opts.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, trace.WithBatcher(exporter, trace.WithBatchTimeout(time.Second)))
	}
	return trace.NewTracerProvider(providerOpts...), nil
}

func preferDeltaTemporality(kind metric.InstrumentKind) metricdata.Temporality {
	switch kind {
	case metric.InstrumentKindCounter,
		metric.InstrumentKindObservableCounter,
		metric.InstrumentKindHistogram:
		return metricdata.DeltaTemporality
	default:
		return metricdata.CumulativeTemporality
	}
}

func newMeterProvider(ctx context.Context, res *resource.Resource, opts Options) (*metric.MeterProvider, error) {
	providerOpts := []metric.Option{metric.WithResource(res)}
	if opts.Endpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(opts.Endpoint),
			otlpmetricgrpc.WithHeaders(opts.Headers),
			otlpmetricgrpc.WithCompressor(gzip.Name),
			otlpmetricgrpc.WithTemporalitySelector(preferDeltaTemporality),
		}
		if opts.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, metric.WithReader(
			metric.NewPeriodicReader(exporter, metric.WithInterval(15*time.Second)),
		))
	}
	return metric.NewMeterProvider(providerOpts...), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, opts Options) (*log.LoggerProvider, error) {
	providerOpts := []log.LoggerProviderOption{log.WithResource(res)}
	switch {
	case opts.Endpoint != "":
		exporterOpts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(opts.Endpoint),
			otlploghttp.WithHeaders(opts.Headers),
			otlploghttp.WithCompression(otlploghttp.GzipCompression),
		}
		if opts.Insecure {
			exporterOpts = append(exporterOpts, otlploghttp.WithInsecure())
		}
		exporter, err := otlploghttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, log.WithProcessor(log.NewBatchProcessor(exporter)))
	case opts.LogWriter != nil:
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(opts.LogWriter))
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, log.WithProcessor(log.NewSimpleProcessor(exporter)))
	}
	return log.NewLoggerProvider(providerOpts...), nil
}
