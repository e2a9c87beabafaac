package app

import (
	"strings"
	"time"

	"github.com/yungbote/riskwatch-backend/internal/clients/kafka"
	"github.com/yungbote/riskwatch-backend/internal/clients/redis"
	"github.com/yungbote/riskwatch-backend/internal/data/db"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/envutil"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
	"github.com/yungbote/riskwatch-backend/internal/scheduler"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

const (
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

type EventsConfig struct {
	// Sinks lists the enabled alert event sinks; empty means events are dropped.
	Sinks []string
	Redis redis.Config
	Kafka kafka.Config
}

func (c EventsConfig) Enabled(sink string) bool {
	for _, s := range c.Sinks {
		if strings.EqualFold(s, sink) {
			return true
		}
	}
	return false
}

type Config struct {
	DB   db.Config
	Otel observability.OtelConfig

	EvalTimeout    time.Duration
	BatchChunkSize int
	// StaleAfter is how long a PROCESSING row may go untouched before a pending
	// sweep rescores it. Zero derives it from EvalTimeout.
	StaleAfter     time.Duration

	WorkerConcurrency int
	WorkerQueueSize   int
	StopTimeout       time.Duration
	SweepOnStart      bool

	Schedule scheduler.Config
	Events   EventsConfig
}

func LoadConfig(log *logger.Logger) Config {
	var sinks []string
	for _, s := range envutil.List("ALERT_EVENTS_SINK", log) {
		if s = strings.ToLower(s); s != "none" {
			sinks = append(sinks, s)
		}
	}
	return Config{
		DB: db.Config{
			Driver:           envutil.String("DB_DRIVER", "postgres", log),
			SQLitePath:       envutil.String("SQLITE_PATH", "riskwatch.db", log),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost", log),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432", log),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres", log),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", "", log),
			PostgresName:     envutil.String("POSTGRES_NAME", "riskwatch", log),
		},
		Otel:              observability.LoadOtelConfig(log),
		EvalTimeout:       envutil.Millis("RISK_EVAL_TIMEOUT_MS", riskservice.DefaultEvaluationTimeout, log),
		BatchChunkSize:    envutil.Int("RISK_BATCH_CHUNK_SIZE", riskservice.DefaultChunkSize, log),
		StaleAfter:        envutil.Millis("RISK_STALE_PROCESSING_MS", 0, log),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 2, log),
		WorkerQueueSize:   envutil.Int("WORKER_QUEUE_SIZE", 256, log),
		StopTimeout:       envutil.Millis("WORKER_STOP_TIMEOUT_MS", 30*time.Second, log),
		SweepOnStart:      envutil.Bool("RISK_SWEEP_ON_START", true, log),
		Schedule: scheduler.Config{
			RecomputeSpec: cronSpec("RISK_RECOMPUTE_CRON", scheduler.DefaultRecomputeSpec, log),
			ReconcileSpec: cronSpec("RISK_RECONCILE_CRON", scheduler.DefaultReconcileSpec, log),
		},
		Events: EventsConfig{
			Sinks: sinks,
			Redis: redis.Config{
				Addr:    envutil.String("REDIS_ADDR", "localhost:6379", log),
				Channel: envutil.String("REDIS_CHANNEL", "risk_alerts", log),
			},
			Kafka: kafka.Config{
				Brokers:      envutil.List("KAFKA_BROKERS", log),
				Topic:        envutil.String("KAFKA_ALERT_TOPIC", "risk-alerts", log),
				MaxAttempts:  envutil.Int("KAFKA_MAX_ATTEMPTS", 3, log),
				RetryBackoff: envutil.Millis("KAFKA_RETRY_BACKOFF_MS", 100*time.Millisecond, log),
			},
		},
	}
}

// cronSpec reads a schedule; "off" disables the entry.
func cronSpec(key, def string, log *logger.Logger) string {
	v := envutil.String(key, def, log)
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}
