package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

func TestNewAlertBus_RequiresAddr(t *testing.T) {
	if _, err := NewAlertBus(Config{}, logger.NewNop()); err == nil {
		t.Fatalf("expected error for missing addr")
	}
	if _, err := NewAlertBus(Config{Addr: "localhost:6379"}, nil); err == nil {
		t.Fatalf("expected error for missing logger")
	}
}

func TestAlertBus_PublishSurfacesConnectionErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	bus := newAlertBus(rdb, "", logger.NewNop())
	defer bus.Close()

	if bus.channel != "risk_alerts" {
		t.Fatalf("channel=%q", bus.channel)
	}
	if err := bus.Publish(context.Background()); err != nil {
		t.Fatalf("empty publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Publish(ctx, events.AlertEvent{Type: events.AlertCreated}); err == nil {
		t.Fatalf("expected publish error against closed port")
	}
}
