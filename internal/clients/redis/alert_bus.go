package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type Config struct {
	Addr    string
	Channel string
}

type AlertBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewAlertBus(cfg Config, log *logger.Logger) (*AlertBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newAlertBus(rdb, cfg.Channel, log), nil
}

func newAlertBus(rdb *goredis.Client, channel string, log *logger.Logger) *AlertBus {
	ch := strings.TrimSpace(channel)
	if ch == "" {
		ch = "risk_alerts"
	}
	return &AlertBus{
		log:     log.With("service", "RedisAlertBus"),
		rdb:     rdb,
		channel: ch,
	}
}

func (b *AlertBus) Publish(ctx context.Context, evts ...events.AlertEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis alert bus not initialized")
	}
	if len(evts) == 0 {
		return nil
	}
	pipe := b.rdb.Pipeline()
	for _, evt := range evts {
		raw, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, b.channel, raw)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe forwards events published on the channel until ctx is done.
func (b *AlertBus) Subscribe(ctx context.Context, onEvent func(events.AlertEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis alert bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var evt events.AlertEvent
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.log.Warn("bad redis alert payload", "error", err)
					continue
				}
				onEvent(evt)
			}
		}
	}()
	return nil
}

func (b *AlertBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
