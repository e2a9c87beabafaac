package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	types "github.com/yungbote/riskwatch-backend/internal/domain"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const (
	DefaultRecomputeSpec = "0 0 2 * * *"
	DefaultReconcileSpec = "0 30 2 * * *"
)

// Triggers are the periodic submissions the scheduler makes.
type Triggers interface {
	ScheduledRecompute(ctx context.Context) (*types.JobRun, error)
	ReconcileAlerts(ctx context.Context) (*types.JobRun, error)
}

type Config struct {
	// Specs use six fields (seconds first). An empty spec disables the entry.
	RecomputeSpec string
	ReconcileSpec string
}

type Scheduler struct {
	cron     *cron.Cron
	log      *logger.Logger
	triggers Triggers
}

func New(baseLog *logger.Logger, triggers Triggers, cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		log:      baseLog.With("component", "RiskScheduler"),
		triggers: triggers,
	}
	if err := s.add("risk_recompute", cfg.RecomputeSpec, func(ctx context.Context) (*types.JobRun, error) {
		return s.triggers.ScheduledRecompute(ctx)
	}); err != nil {
		return nil, err
	}
	if err := s.add("risk_alert_reconcile", cfg.ReconcileSpec, func(ctx context.Context) (*types.JobRun, error) {
		return s.triggers.ReconcileAlerts(ctx)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, submit func(context.Context) (*types.JobRun, error)) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.log.Info("Cron entry disabled", "entry", name)
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() {
		job, err := submit(context.Background())
		if err != nil {
			s.log.Warn("Scheduled submission failed", "entry", name, "error", err)
			return
		}
		s.log.Info("Scheduled task submitted", "entry", name, "job_id", job.ID)
	})
	if err != nil {
		return fmt.Errorf("add cron entry %s (%q): %w", name, spec, err)
	}
	s.log.Info("Cron entry added", "entry", name, "spec", spec, "entry_id", id)
	return nil
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", "entries", s.Entries())
}

// Stop waits for running entries to return, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timeout")
		return ctx.Err()
	}
}
