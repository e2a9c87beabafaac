package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/db"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	dbService       *db.Service
	otelShutdown    func(context.Context) error
	metricsShutdown func(context.Context) error
	cancel          context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics, metricsShutdown := observability.InitMetrics(ctx, log, cfg.Otel)

	dbService, err := db.NewService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, reposet, clientset, metrics)
	if err != nil {
		_ = clientset.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	// Existing duplicate active alerts must be folded before the one-active index can exist.
	if err := db.EnsureRiskIndexes(theDB, serviceset.Reconciler.ResolveDuplicates); err != nil {
		_ = clientset.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("ensure risk indexes: %w", err)
	}

	if err := metrics.RegisterStatusCollector(log, theDB); err != nil {
		log.Warn("Risk status gauge not registered", "error", err)
	}

	return &App{
		Log:             log,
		DB:              theDB,
		Cfg:             cfg,
		Repos:           reposet,
		Clients:         clientset,
		Services:        serviceset,
		Metrics:         metrics,
		dbService:       dbService,
		otelShutdown:    otelShutdown,
		metricsShutdown: metricsShutdown,
	}, nil
}

// Start launches the job worker pool and the schedule. It is a no-op when
// called twice.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(runCtx)
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Start()
	}
	if a.Cfg.SweepOnStart && a.Services.Dispatcher != nil {
		if _, err := a.Services.Dispatcher.PendingSweep(runCtx); err != nil {
			a.Log.Warn("Startup pending sweep not queued", "error", err)
		}
	}
}

// Close stops the schedule, drains the worker within the configured stop
// timeout and releases clients, exporters and the database.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Services.Scheduler != nil {
		if err := a.Services.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.Services.JobWorker != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.Cfg.StopTimeout)
		if err := a.Services.JobWorker.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop worker: %w", err))
		}
		cancel()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if err := a.Clients.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event sinks: %w", err))
	}
	if a.metricsShutdown != nil {
		if err := a.metricsShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
