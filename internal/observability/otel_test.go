package observability

import (
	"context"
	"testing"
	"time"
)

func TestLoadOtelConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "riskwatch-test")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer x, bad, =empty,tenant=a")
	t.Setenv("OTEL_SAMPLER_RATIO", "3")
	t.Setenv("METRICS_EXPORT_INTERVAL_MS", "2500")

	cfg := LoadOtelConfig(nil)
	if cfg.ServiceName != "riskwatch-test" || !cfg.TracingEnabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("SampleRatio=%v, want clamped to 1", cfg.SampleRatio)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("metrics should default off")
	}
	if cfg.MetricsInterval != 2500*time.Millisecond {
		t.Fatalf("MetricsInterval=%s", cfg.MetricsInterval)
	}
	if len(cfg.TraceHeaders) != 2 || cfg.TraceHeaders["authorization"] != "Bearer x" || cfg.TraceHeaders["tenant"] != "a" {
		t.Fatalf("TraceHeaders=%v", cfg.TraceHeaders)
	}
}

func TestParseHeaders_Empty(t *testing.T) {
	if h := parseHeaders(""); h != nil {
		t.Fatalf("want nil, got %v", h)
	}
}

func TestServiceNameFallback(t *testing.T) {
	if got := serviceName(OtelConfig{ServiceName: "  "}); got != defaultServiceName {
		t.Fatalf("serviceName=%q", got)
	}
}

func TestBuildResourceCarriesServiceName(t *testing.T) {
	res := buildResource(context.Background(), nil, OtelConfig{ServiceName: "rw", Environment: "test"})
	if res == nil {
		t.Fatalf("nil resource")
	}
	found := false
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "service.name" && kv.Value.AsString() == "rw" {
			found = true
		}
	}
	if !found {
		t.Fatalf("service.name missing: %v", res.Attributes())
	}
}
