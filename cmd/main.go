package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/riskwatch-backend/internal/app"
	"github.com/yungbote/riskwatch-backend/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	a.Start(ctx)
	a.Log.Info("Risk worker running", "concurrency", a.Cfg.WorkerConcurrency, "sinks", a.Cfg.Events.Sinks)
	<-ctx.Done()
	a.Log.Info("Shutdown signal received, draining jobs...")

	closeCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.StopTimeout+5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		fmt.Printf("shutdown: %v\n", err)
		os.Exit(1)
	}
}
