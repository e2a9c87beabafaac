package app

import (
	"fmt"

	"github.com/yungbote/riskwatch-backend/internal/clients/kafka"
	"github.com/yungbote/riskwatch-backend/internal/clients/redis"
	"github.com/yungbote/riskwatch-backend/internal/clients/scoring"
	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type Clients struct {
	Scoring *scoring.Client
	// AlertBus is nil unless the redis sink is enabled.
	AlertBus    *redis.AlertBus
	AlertStream *kafka.AlertStream
	Events      events.Publisher
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	sc, err := scoring.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init scoring client: %w", err)
	}
	log.Info("Scoring client ready", "base_url", sc.BaseURL(), "timeout", sc.Timeout())
	if sc.Timeout() >= cfg.EvalTimeout {
		log.Warn("Scoring client timeout is not below the evaluation timeout; slow calls surface as evaluation timeouts",
			"client_timeout", sc.Timeout(),
			"eval_timeout", cfg.EvalTimeout,
		)
	}

	var (
		bus    *redis.AlertBus
		stream *kafka.AlertStream
		sinks  []events.Publisher
	)
	if cfg.Events.Enabled(SinkRedis) {
		bus, err = redis.NewAlertBus(cfg.Events.Redis, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis alert bus: %w", err)
		}
		sinks = append(sinks, bus)
	}
	if cfg.Events.Enabled(SinkKafka) {
		stream, err = kafka.NewAlertStream(cfg.Events.Kafka, log)
		if err != nil {
			if bus != nil {
				_ = bus.Close()
			}
			return Clients{}, fmt.Errorf("init kafka alert stream: %w", err)
		}
		sinks = append(sinks, stream)
	}
	if len(sinks) == 0 {
		log.Info("No alert event sink configured; alert events are not published")
	}

	return Clients{
		Scoring:     sc,
		AlertBus:    bus,
		AlertStream: stream,
		Events:      events.NewFanout(sinks...),
	}, nil
}

func (c Clients) Close() error {
	if c.Events == nil {
		return nil
	}
	return c.Events.Close()
}
