package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/yungbote/riskwatch-backend/internal/platform/envutil"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const defaultServiceName = "riskwatch"

type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string

	TracingEnabled bool
	// TraceEndpoint is an OTLP/HTTP collector; when empty spans go to stdout.
	TraceEndpoint string
	TraceHeaders  map[string]string
	TraceInsecure bool
	SampleRatio   float64

	MetricsEnabled bool
	// MetricsEndpoint is an OTLP/gRPC collector.
	MetricsEndpoint string
	MetricsInterval time.Duration
}

func LoadOtelConfig(log *logger.Logger) OtelConfig {
	return OtelConfig{
		ServiceName:     envutil.String("OTEL_SERVICE_NAME", defaultServiceName, log),
		Environment:     envutil.String("APP_ENV", "development", log),
		Version:         envutil.String("APP_VERSION", "", log),
		TracingEnabled:  envutil.Bool("OTEL_ENABLED", false, log),
		TraceEndpoint:   envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		TraceHeaders:    parseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log)),
		TraceInsecure:   envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
		SampleRatio:     clampRatio(envutil.Float("OTEL_SAMPLER_RATIO", 0.1, log)),
		MetricsEnabled:  envutil.Bool("METRICS_ENABLED", false, log),
		MetricsEndpoint: envutil.String("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "localhost:4317", log),
		MetricsInterval: envutil.Millis("METRICS_EXPORT_INTERVAL_MS", 10*time.Second, log),
	}
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error
)

// InitOTel installs the global tracer provider once per process. It returns
// nil when tracing is disabled.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !cfg.TracingEnabled {
			return
		}
		res := buildResource(ctx, log, cfg)

		exporter, err := buildTraceExporter(ctx, log, cfg)
		if err != nil && log != nil {
			log.Warn("otel exporter init failed (continuing)", "error", err)
		}
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
			sdktrace.WithResource(res),
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized",
				"service", serviceName(cfg),
				"endpoint", cfg.TraceEndpoint,
				"sample_ratio", cfg.SampleRatio,
			)
		}
	})
	return otelShutdown
}

func serviceName(cfg OtelConfig) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return defaultServiceName
}

func buildResource(ctx context.Context, log *logger.Logger, cfg OtelConfig) *resource.Resource {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(cfg)),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		),
	)
	if err != nil && log != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}
	return res
}

func buildTraceExporter(ctx context.Context, log *logger.Logger, cfg OtelConfig) (sdktrace.SpanExporter, error) {
	if cfg.TraceEndpoint == "" {
		if log != nil {
			log.Warn("otel using stdout exporter (no OTLP endpoint configured)")
		}
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.TraceEndpoint)}
	if cfg.TraceInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.TraceHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.TraceHeaders))
	}
	return otlptracehttp.New(ctx, opts...)
}

// parseHeaders reads "k1=v1,k2=v2". Malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func clampRatio(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
