package app

import (
	"fmt"

	"github.com/yungbote/riskwatch-backend/internal/jobs/pipeline/risk_alert_reconcile"
	"github.com/yungbote/riskwatch-backend/internal/jobs/pipeline/risk_evaluate"
	"github.com/yungbote/riskwatch-backend/internal/jobs/pipeline/risk_evaluate_batch"
	"github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
	"github.com/yungbote/riskwatch-backend/internal/jobs/worker"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
	"github.com/yungbote/riskwatch-backend/internal/scheduler"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

type Services struct {
	Alerts     *riskservice.AlertSynchronizer
	Evaluator  *riskservice.Evaluator
	Batch      *riskservice.BatchEvaluator
	Reconciler *riskservice.Reconciler
	Dispatcher *riskservice.Dispatcher

	JobRegistry *runtime.Registry
	JobWorker   *worker.Worker
	Scheduler   *scheduler.Scheduler
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	alerts := riskservice.NewAlertSynchronizer(log, reposet.Alert, reposet.Mentor, clients.Events, metrics)
	evaluator := riskservice.NewEvaluator(log, reposet.Student, clients.Scoring, alerts, cfg.EvalTimeout, metrics)
	batch := riskservice.NewBatchEvaluator(log, reposet.Student, clients.Scoring, alerts, cfg.EvalTimeout, cfg.BatchChunkSize, cfg.StaleAfter, metrics)
	reconciler := riskservice.NewReconciler(log, reposet.Alert)

	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		risk_evaluate.New(log, evaluator),
		risk_evaluate_batch.NewAll(log, batch),
		risk_evaluate_batch.NewPending(log, batch),
		risk_alert_reconcile.New(log, reconciler),
	} {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register %s handler: %w", h.Type(), err)
		}
	}

	jobWorker := worker.NewWorker(log, reposet.JobRun, registry, worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
		Metrics:     metrics,
	})
	dispatcher := riskservice.NewDispatcher(log, jobWorker, evaluator, batch)

	sched, err := scheduler.New(log, dispatcher, cfg.Schedule)
	if err != nil {
		return Services{}, fmt.Errorf("init scheduler: %w", err)
	}

	return Services{
		Alerts:      alerts,
		Evaluator:   evaluator,
		Batch:       batch,
		Reconciler:  reconciler,
		Dispatcher:  dispatcher,
		JobRegistry: registry,
		JobWorker:   jobWorker,
		Scheduler:   sched,
	}, nil
}
