package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/riskwatch-backend/internal/data/repos/testutil"
	"github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/scheduler"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ALERT_EVENTS_SINK", "")
	t.Setenv("RISK_EVAL_TIMEOUT_MS", "")
	cfg := LoadConfig(testutil.Logger(t))
	if cfg.EvalTimeout != 5*time.Second || cfg.BatchChunkSize != 10 {
		t.Fatalf("timeout=%s chunk=%d", cfg.EvalTimeout, cfg.BatchChunkSize)
	}
	if cfg.Schedule.RecomputeSpec != scheduler.DefaultRecomputeSpec {
		t.Fatalf("recompute spec=%q", cfg.Schedule.RecomputeSpec)
	}
	if len(cfg.Events.Sinks) != 0 {
		t.Fatalf("sinks=%v want none", cfg.Events.Sinks)
	}
}

func TestLoadConfig_Sinks(t *testing.T) {
	t.Setenv("ALERT_EVENTS_SINK", "Redis, kafka,none")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("RISK_EVAL_TIMEOUT_MS", "750")
	t.Setenv("RISK_STALE_PROCESSING_MS", "90000")
	cfg := LoadConfig(testutil.Logger(t))
	if !cfg.Events.Enabled(SinkRedis) || !cfg.Events.Enabled(SinkKafka) || len(cfg.Events.Sinks) != 2 {
		t.Fatalf("sinks=%v", cfg.Events.Sinks)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Brokers[1] != "b2:9092" {
		t.Fatalf("brokers=%v", cfg.Events.Kafka.Brokers)
	}
	if cfg.EvalTimeout != 750*time.Millisecond || cfg.StaleAfter != 90*time.Second {
		t.Fatalf("timeout=%s stale=%s", cfg.EvalTimeout, cfg.StaleAfter)
	}
}

func TestApp_StartupSweepScoresPendingStudents(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/predict-risk" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"score":    88.2,
			"category": "High",
			"reasons":  []string{"Low attendance"},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LOG_MODE", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("SCORING_BASE_URL", srv.URL)
	t.Setenv("ALERT_EVENTS_SINK", "none")
	t.Setenv("RISK_SWEEP_ON_START", "true")
	t.Setenv("RISK_RECOMPUTE_CRON", "off")
	t.Setenv("RISK_RECONCILE_CRON", "off")

	ctx := context.Background()
	a, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	st := testutil.SeedStudent(t, ctx, a.DB, "S-100")
	a.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := a.Repos.Student.GetByID(dbctx.Context{Ctx: ctx}, st.ID)
		if err != nil {
			t.Fatalf("get student: %v", err)
		}
		if got.RiskStatus == risk.RiskStatusCalculated {
			if got.Category() != risk.RiskCategoryHigh || got.Score() != 88.2 {
				t.Fatalf("student=%+v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("student never scored, status=%s calls=%d", got.RiskStatus, atomic.LoadInt32(&calls))
		}
		time.Sleep(20 * time.Millisecond)
	}

	alert, err := a.Repos.Alert.GetActiveByStudent(dbctx.Context{Ctx: ctx}, st.ID, risk.AlertTypeRisk)
	if err != nil || alert == nil {
		t.Fatalf("active alert=%v err=%v", alert, err)
	}
	if alert.Message != "Risk is High (88%)" {
		t.Fatalf("message=%q", alert.Message)
	}
	if a.Services.Scheduler.Entries() != 0 {
		t.Fatalf("disabled schedules registered")
	}
}
