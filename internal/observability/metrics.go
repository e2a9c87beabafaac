package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const meterName = "github.com/yungbote/riskwatch-backend"

type Metrics struct {
	evaluations    metric.Int64Counter
	alertActions   metric.Int64Counter
	jobRuns        metric.Int64Counter
	scoringLatency metric.Float64Histogram
	batchDuration  metric.Float64Histogram
	meter          metric.Meter
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process-wide instruments, or nil before InitMetrics.
// All Metrics methods are nil-safe.
func Current() *Metrics {
	return instance
}

// InitMetrics installs an OTLP (gRPC, push) meter provider when cfg.MetricsEnabled is set
// and builds the risk instruments on top of the global provider.
func InitMetrics(ctx context.Context, log *logger.Logger, cfg OtelConfig) (*Metrics, func(context.Context) error) {
	shutdown := func(context.Context) error { return nil }
	initOnce.Do(func() {
		if cfg.MetricsEnabled {
			endpoint := cfg.MetricsEndpoint
			if endpoint == "" {
				endpoint = "localhost:4317"
			}
			interval := cfg.MetricsInterval
			if interval <= 0 {
				interval = 10 * time.Second
			}
			initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			exp, err := otlpmetricgrpc.New(initCtx,
				otlpmetricgrpc.WithEndpoint(endpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			cancel()
			if err != nil {
				if log != nil {
					log.Warn("metrics exporter init failed (continuing)", "error", err)
				}
			} else {
				reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
				mp := sdkmetric.NewMeterProvider(
					sdkmetric.WithReader(reader),
					sdkmetric.WithResource(buildResource(ctx, log, cfg)),
				)
				otel.SetMeterProvider(mp)
				shutdown = mp.Shutdown
				if log != nil {
					log.Info("otel metrics initialized", "endpoint", endpoint, "interval", interval)
				}
			}
		}
		instance = NewMetrics(otel.GetMeterProvider())
	})
	return instance, shutdown
}

// NewMetrics builds the instruments against mp. Instrument creation errors leave
// the corresponding instrument as a no-op.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{meter: meter}
	m.evaluations, _ = meter.Int64Counter("riskwatch_evaluations_total",
		metric.WithDescription("Risk evaluations by mode and outcome"))
	m.alertActions, _ = meter.Int64Counter("riskwatch_alert_actions_total",
		metric.WithDescription("Alert synchronization actions"))
	m.jobRuns, _ = meter.Int64Counter("riskwatch_job_runs_total",
		metric.WithDescription("Background task runs by type and final status"))
	m.scoringLatency, _ = meter.Float64Histogram("riskwatch_scoring_latency_seconds",
		metric.WithUnit("s"),
		metric.WithDescription("Scoring service call latency"))
	m.batchDuration, _ = meter.Float64Histogram("riskwatch_batch_duration_seconds",
		metric.WithUnit("s"),
		metric.WithDescription("Batch evaluation wall time"))
	return m
}

// mode: single|batch; outcome: calculated|failed|stale|skipped
func (m *Metrics) IncEvaluation(ctx context.Context, mode, outcome string) {
	if m == nil || m.evaluations == nil {
		return
	}
	m.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) AddAlertActions(ctx context.Context, action string, n int) {
	if m == nil || m.alertActions == nil || n <= 0 {
		return
	}
	m.alertActions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("action", action)))
}

func (m *Metrics) IncJobRun(ctx context.Context, jobType, status string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("status", status),
	))
}

func (m *Metrics) ObserveScoring(ctx context.Context, status string, dur time.Duration) {
	if m == nil || m.scoringLatency == nil {
		return
	}
	m.scoringLatency.Record(ctx, dur.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) ObserveBatch(ctx context.Context, reason string, dur time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
}

// RegisterStatusCollector reports the number of students in each risk status
// whenever the meter provider collects.
func (m *Metrics) RegisterStatusCollector(log *logger.Logger, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	gauge, err := m.meter.Int64ObservableGauge("riskwatch_students_by_risk_status",
		metric.WithDescription("Students per risk evaluation status"))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		var rows []struct {
			RiskStatus string
			Count      int64
		}
		if err := db.WithContext(ctx).
			Model(&types.Student{}).
			Select("risk_status, count(*) as count").
			Group("risk_status").
			Scan(&rows).Error; err != nil {
			if log != nil {
				log.Warn("metrics: risk status query failed", "error", err)
			}
			return nil
		}
		for _, row := range rows {
			o.ObserveInt64(gauge, row.Count, metric.WithAttributes(attribute.String("risk_status", row.RiskStatus)))
		}
		return nil
	}, gauge)
	return err
}
