package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type Config struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// AlertStream writes alert events to a topic keyed by student, so every event
// for one student lands on the same partition in order.
type AlertStream struct {
	writer *kafka.Writer
	topic  string
	log    *logger.Logger
}

func NewAlertStream(cfg Config, log *logger.Logger) (*AlertStream, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("missing KAFKA_BROKERS")
	}
	if cfg.Topic == "" {
		cfg.Topic = "risk-alerts"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxAttempts,
		WriteBackoffMin:        cfg.RetryBackoff,
		WriteBackoffMax:        cfg.RetryBackoff * 10,
	}
	log.Info("Kafka alert stream created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &AlertStream{writer: writer, topic: cfg.Topic, log: log.With("service", "KafkaAlertStream")}, nil
}

func (s *AlertStream) Publish(ctx context.Context, evts ...events.AlertEvent) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		msg, err := alertMessage(evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.log.Error("Failed to send alert events", "topic", s.topic, "count", len(msgs), "error", err)
		return err
	}
	s.log.Debug("Alert events sent", "topic", s.topic, "count", len(msgs))
	return nil
}

func (s *AlertStream) Close() error {
	return s.writer.Close()
}

func alertMessage(evt events.AlertEvent) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal alert event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.StudentID.String()),
		Value: data,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}, nil
}
