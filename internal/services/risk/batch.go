package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/riskwatch-backend/internal/clients/scoring"
	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const DefaultChunkSize = 10

// DefaultStaleFactor times the evaluation timeout is how long a PROCESSING row
// may go untouched before a pending sweep treats its attempt as orphaned.
const DefaultStaleFactor = 6

type BatchResult struct {
	Reason string `json:"reason"`
	Total  int    `json:"total"`
	// Processed counts successful evaluations.
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	Stale      int        `json:"stale"`
	Alerts     SyncCounts `json:"alerts"`
	DurationMs int64      `json:"duration_ms"`
}

type BatchEvaluator struct {
	log       *logger.Logger
	students  repos.StudentRepo
	alerts    *AlertSynchronizer
	scorer    timedScorer
	chunkSize int
	metrics   *observability.Metrics
	tracer    trace.Tracer

	// staleAfter is the age past which a PROCESSING row counts as orphaned.
	staleAfter time.Duration
}

func NewBatchEvaluator(baseLog *logger.Logger, students repos.StudentRepo, scorer Scorer, alerts *AlertSynchronizer, timeout time.Duration, chunkSize int, staleAfter time.Duration, metrics *observability.Metrics) *BatchEvaluator {
	if timeout <= 0 {
		timeout = DefaultEvaluationTimeout
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleFactor * timeout
	}
	return &BatchEvaluator{
		log:        baseLog.With("service", "BatchRiskEvaluator"),
		students:   students,
		alerts:     alerts,
		scorer:     timedScorer{scorer: scorer, timeout: timeout, metrics: metrics},
		chunkSize:  chunkSize,
		staleAfter: staleAfter,
		metrics:    metrics,
		tracer:     otel.Tracer("riskwatch/batch"),
	}
}

// EvaluateAll recomputes every student.
func (b *BatchEvaluator) EvaluateAll(ctx context.Context, reason string) (BatchResult, error) {
	students, err := b.students.ListAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return BatchResult{Reason: reason}, fmt.Errorf("list students: %w", err)
	}
	return b.run(ctx, reason, students)
}

// EvaluatePending recomputes students that were never scored, whose last
// attempt failed, or whose attempt was orphaned in PROCESSING (e.g. by a crash).
func (b *BatchEvaluator) EvaluatePending(ctx context.Context, reason string) (BatchResult, error) {
	students, err := b.students.ListPending(dbctx.Context{Ctx: ctx}, time.Now().Add(-b.staleAfter))
	if err != nil {
		return BatchResult{Reason: reason}, fmt.Errorf("list pending students: %w", err)
	}
	return b.run(ctx, reason, students)
}

type itemOutcome struct {
	res scoring.Result
	err error
}

func (b *BatchEvaluator) run(ctx context.Context, reason string, students []*types.Student) (BatchResult, error) {
	start := time.Now()
	out := BatchResult{Reason: reason, Total: len(students)}
	if len(students) == 0 {
		return out, nil
	}
	ctx, span := b.tracer.Start(ctx, "risk.evaluate_batch",
		trace.WithAttributes(
			attribute.String("reason", reason),
			attribute.Int("total", len(students)),
		),
	)
	defer span.End()

	ids := make([]uuid.UUID, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	attempt := uuid.New()
	if _, err := b.students.MarkProcessing(dbctx.Context{Ctx: ctx}, ids, attempt, reason); err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("mark batch processing: %w", err)
	}
	b.log.Info("Batch evaluation started",
		"reason", reason,
		"total", len(students),
		"chunk_size", b.chunkSize,
		"attempt_id", attempt,
	)

	outcomes := make([]itemOutcome, len(students))
	for lo := 0; lo < len(students); lo += b.chunkSize {
		hi := lo + b.chunkSize
		if hi > len(students) {
			hi = len(students)
		}
		if err := ctx.Err(); err != nil {
			// Remaining students are recorded as failed rather than left PROCESSING.
			for i := lo; i < len(students); i++ {
				outcomes[i] = itemOutcome{err: err}
			}
			break
		}
		if lo > 0 {
			if _, err := b.students.TouchAttempt(dbctx.Context{Ctx: ctx}, attempt); err != nil {
				b.log.Warn("Batch heartbeat failed", "attempt_id", attempt, "error", err)
			}
		}
		var g errgroup.Group
		g.SetLimit(b.chunkSize)
		for i := lo; i < hi; i++ {
			i := i
			g.Go(func() error {
				res, err := b.scorer.score(ctx, scoring.FeaturesFromStudent(students[i]))
				outcomes[i] = itemOutcome{res: res, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}

	now := time.Now()
	writes := make([]repos.ResultWrite, len(students))
	for i, s := range students {
		w := repos.ResultWrite{StudentID: s.ID, AttemptID: attempt, Reason: reason, At: now}
		if o := outcomes[i]; o.err == nil {
			w.Success = true
			w.Score = o.res.Score
			w.Category = o.res.Category
			w.Reasons = o.res.Reasons
			w.ModelID = o.res.ModelID
			w.ModelVersion = o.res.ModelVersion
		}
		writes[i] = w
	}

	writeCtx := context.WithoutCancel(ctx)
	applied, err := b.students.ApplyResults(dbctx.Context{Ctx: writeCtx}, writes)
	if err != nil {
		span.RecordError(err)
		out.DurationMs = time.Since(start).Milliseconds()
		return out, fmt.Errorf("persist batch results: %w", err)
	}

	var (
		succeeded = make([]*types.Student, 0, len(students))
		snapshots = make(map[uuid.UUID]RiskSnapshot, len(students))
	)
	for i, s := range students {
		o := outcomes[i]
		switch {
		case !applied[s.ID]:
			out.Stale++
			b.metrics.IncEvaluation(ctx, "batch", "stale")
		case o.err != nil:
			out.Failed++
			b.metrics.IncEvaluation(ctx, "batch", "failed")
			b.log.Warn("Batch item failed", "student_id", s.ID, "reason", reason, "error", o.err)
		default:
			out.Processed++
			b.metrics.IncEvaluation(ctx, "batch", "calculated")
			succeeded = append(succeeded, s)
			snapshots[s.ID] = RiskSnapshot{Category: o.res.Category, Score: o.res.Score}
		}
	}

	counts, syncErr := b.alerts.SyncAll(writeCtx, succeeded, snapshots)
	out.Alerts = counts
	out.DurationMs = time.Since(start).Milliseconds()
	b.metrics.ObserveBatch(ctx, reason, time.Since(start))
	span.SetAttributes(
		attribute.Int("processed", out.Processed),
		attribute.Int("failed", out.Failed),
		attribute.Int("stale", out.Stale),
	)
	b.log.Info("Batch evaluation complete",
		"reason", reason,
		"total", out.Total,
		"processed", out.Processed,
		"failed", out.Failed,
		"stale", out.Stale,
		"alerts_created", counts.Created,
		"alerts_updated", counts.Updated,
		"alerts_deactivated", counts.Deactivated,
		"duration_ms", out.DurationMs,
	)
	if syncErr != nil {
		span.RecordError(syncErr)
		return out, fmt.Errorf("batch alert sync: %w", syncErr)
	}
	return out, nil
}
