package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/riskwatch-backend/internal/app"
	"github.com/yungbote/riskwatch-backend/internal/clients/scoring"
	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/shutdown"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var students idList
	var all, pending, watch bool
	flag.Var(&students, "student", "student id or student code to recalculate (repeatable)")
	flag.BoolVar(&all, "all", false, "recalculate every student")
	flag.BoolVar(&pending, "pending", false, "recalculate students never scored or whose last evaluation failed")
	flag.BoolVar(&watch, "watch", false, "print alert events from the redis bus until interrupted")
	flag.Parse()

	if len(students) == 0 && !all && !pending && !watch {
		flag.Usage()
		return 2
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		return 1
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			fmt.Printf("close: %v\n", err)
		}
	}()

	d := application.Services.Dispatcher
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	code := 0

	for _, ref := range students {
		id, err := resolveStudent(ctx, application, ref)
		if err != nil {
			fmt.Printf("student %s: %v\n", ref, err)
			code = 1
			continue
		}
		res, err := d.RecalculateNow(ctx, id)
		if res != nil {
			_ = enc.Encode(res)
		}
		if err != nil {
			if errors.Is(err, scoring.ErrScoringUnavailable) {
				fmt.Printf("student %s: scoring unavailable: %v\n", ref, err)
			} else {
				fmt.Printf("student %s: %v\n", ref, err)
			}
			code = 1
		}
	}

	if all || pending {
		batch := d.RecalculateAllNow
		if pending && !all {
			batch = d.RecalculatePendingNow
		}
		res, err := batch(ctx)
		_ = enc.Encode(res)
		if err != nil {
			fmt.Printf("batch: %v\n", err)
			code = 1
		}
	}

	if watch {
		bus := application.Clients.AlertBus
		if bus == nil {
			fmt.Println("watch requires ALERT_EVENTS_SINK to include redis")
			return 2
		}
		line := json.NewEncoder(os.Stdout)
		if err := bus.Subscribe(ctx, func(evt events.AlertEvent) {
			_ = line.Encode(evt)
		}); err != nil {
			fmt.Printf("watch: %v\n", err)
			return 1
		}
		<-ctx.Done()
	}
	return code
}

func resolveStudent(ctx context.Context, a *app.App, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	s, err := a.Repos.Student.GetByCode(dbctx.Context{Ctx: ctx}, ref)
	if err != nil {
		return uuid.Nil, err
	}
	if s == nil {
		return uuid.Nil, fmt.Errorf("no student with code %q", ref)
	}
	return s.ID, nil
}
