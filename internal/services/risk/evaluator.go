package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/riskwatch-backend/internal/clients/scoring"
	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const DefaultEvaluationTimeout = 5 * time.Second

// Scorer is the scoring service as seen by the evaluators.
type Scorer interface {
	Evaluate(ctx context.Context, f scoring.Features) (scoring.Result, error)
}

type EvaluationResult struct {
	StudentID uuid.UUID          `json:"student_id"`
	AttemptID uuid.UUID          `json:"attempt_id,omitempty"`
	Reason    string             `json:"reason"`
	Status    types.RiskStatus   `json:"status,omitempty"`
	Score     float64            `json:"score,omitempty"`
	Category  types.RiskCategory `json:"category,omitempty"`
	Alert     SyncAction         `json:"alert,omitempty"`
	// Skipped is set when the student does not exist.
	Skipped bool `json:"skipped,omitempty"`
	// Stale is set when a newer attempt took the student over and this result was discarded.
	Stale      bool  `json:"stale,omitempty"`
	DurationMs int64 `json:"duration_ms"`
}

// timedScorer races every scoring call against a deadline. A response that
// arrives after the deadline is dropped.
type timedScorer struct {
	scorer  Scorer
	timeout time.Duration
	metrics *observability.Metrics
}

func (t timedScorer) score(ctx context.Context, f scoring.Features) (scoring.Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		res scoring.Result
		err error
	}
	start := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		res, err := t.scorer.Evaluate(ctx2, f)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		status := "ok"
		if o.err != nil {
			status = "error"
			if !errors.Is(o.err, scoring.ErrScoringUnavailable) {
				o.err = &scoring.ScoringError{Kind: scoring.KindNetwork, Attempts: 1, Err: o.err}
			}
		}
		t.metrics.ObserveScoring(ctx, status, time.Since(start))
		return o.res, o.err
	case <-ctx2.Done():
		t.metrics.ObserveScoring(ctx, "timeout", time.Since(start))
		return scoring.Result{}, &scoring.ScoringError{Kind: scoring.KindTimeout, Err: ctx2.Err()}
	}
}

type Evaluator struct {
	log      *logger.Logger
	students repos.StudentRepo
	alerts   *AlertSynchronizer
	scorer   timedScorer
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

func NewEvaluator(baseLog *logger.Logger, students repos.StudentRepo, scorer Scorer, alerts *AlertSynchronizer, timeout time.Duration, metrics *observability.Metrics) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultEvaluationTimeout
	}
	return &Evaluator{
		log:      baseLog.With("service", "RiskEvaluator"),
		students: students,
		alerts:   alerts,
		scorer:   timedScorer{scorer: scorer, timeout: timeout, metrics: metrics},
		metrics:  metrics,
		tracer:   otel.Tracer("riskwatch/evaluator"),
	}
}

// Evaluate runs one evaluation: PROCESSING is persisted before the scoring
// call, the result is written only while this attempt still owns the student,
// and the alert is synced only after a successful write.
//
// The returned error wraps scoring.ErrScoringUnavailable when scoring failed;
// the student is FAILED in that case and its previous score is kept.
func (e *Evaluator) Evaluate(ctx context.Context, studentID uuid.UUID, reason string) (*EvaluationResult, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "risk.evaluate",
		trace.WithAttributes(
			attribute.String("student_id", studentID.String()),
			attribute.String("reason", reason),
		),
	)
	defer span.End()

	out := &EvaluationResult{StudentID: studentID, Reason: reason}
	finish := func(outcome string) *EvaluationResult {
		out.DurationMs = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.String("outcome", outcome))
		e.metrics.IncEvaluation(ctx, "single", outcome)
		return out
	}
	dbc := dbctx.Context{Ctx: ctx}

	student, err := e.students.GetByID(dbc, studentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load student %s: %w", studentID, err)
	}
	if student == nil {
		e.log.Debug("Evaluation skipped, student not found", "student_id", studentID, "reason", reason)
		out.Skipped = true
		return finish("skipped"), nil
	}

	if err := types.CheckAttemptStart(student.RiskStatus); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("student %s: %w", studentID, err)
	}

	attempt := uuid.New()
	out.AttemptID = attempt
	n, err := e.students.MarkProcessing(dbc, []uuid.UUID{studentID}, attempt, reason)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mark student %s processing: %w", studentID, err)
	}
	if n == 0 {
		out.Skipped = true
		return finish("skipped"), nil
	}
	out.Status = types.RiskStatusProcessing

	res, scoreErr := e.scorer.score(ctx, scoring.FeaturesFromStudent(student))

	// The result must land even if the caller gave up, otherwise the student stays PROCESSING.
	writeCtx := context.WithoutCancel(ctx)
	wdbc := dbctx.Context{Ctx: writeCtx}
	write := repos.ResultWrite{StudentID: studentID, AttemptID: attempt, Reason: reason, At: time.Now()}
	if scoreErr == nil {
		write.Success = true
		write.Score = res.Score
		write.Category = res.Category
		write.Reasons = res.Reasons
		write.ModelID = res.ModelID
		write.ModelVersion = res.ModelVersion
	}
	applied, err := e.students.ApplyResult(wdbc, write)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist result for student %s: %w", studentID, err)
	}
	if !applied {
		e.log.Info("Evaluation result discarded, attempt was superseded",
			"student_id", studentID,
			"attempt_id", attempt,
			"reason", reason,
		)
		out.Stale = true
		return finish("stale"), nil
	}

	if scoreErr != nil {
		out.Status = types.RiskStatusFailed
		span.RecordError(scoreErr)
		span.SetStatus(codes.Error, "scoring unavailable")
		e.log.Warn("Risk evaluation failed",
			"student_id", studentID,
			"reason", reason,
			"error", scoreErr,
		)
		return finish("failed"), fmt.Errorf("evaluate student %s: %w", studentID, scoreErr)
	}

	out.Status = types.RiskStatusCalculated
	out.Score = res.Score
	out.Category = res.Category

	fresh, err := e.students.GetByID(wdbc, studentID)
	if err != nil {
		return finish("calculated"), fmt.Errorf("reload student %s for alert sync: %w", studentID, err)
	}
	action, err := e.alerts.Sync(writeCtx, fresh)
	out.Alert = action
	if err != nil {
		e.log.Error("Alert sync failed after evaluation", "student_id", studentID, "error", err)
		return finish("calculated"), fmt.Errorf("alert sync for student %s: %w", studentID, err)
	}
	e.log.Info("Risk evaluated",
		"student_id", studentID,
		"reason", reason,
		"category", res.Category,
		"score", res.Score,
		"alert", action,
	)
	return finish("calculated"), nil
}
