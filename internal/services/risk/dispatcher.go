package risk

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	types "github.com/yungbote/riskwatch-backend/internal/domain"
	"github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

// Background job types.
const (
	JobTypeEvaluate        = "risk_evaluate"
	JobTypeEvaluateAll     = "risk_evaluate_all"
	JobTypeEvaluatePending = "risk_evaluate_pending"
	JobTypeReconcileAlerts = "risk_alert_reconcile"
)

// Trigger reasons, recorded on the student for audit only.
const (
	ReasonStudentCreated = "StudentCreated"
	ReasonStudentUpdated = "StudentUpdated"
	ReasonAttendance     = "AttendanceUpdate"
	ReasonScheduled      = "ScheduledBatch"
	ReasonManual         = "ManualTrigger"
	ReasonManualBatch    = "ManualBatch"
	ReasonPendingSweep   = "PendingSweep"
)

const entityTypeStudent = "student"

type TaskSubmitter interface {
	Submit(ctx context.Context, task runtime.Task) (*types.JobRun, error)
}

// Dispatcher is the entry point for trigger surfaces. The fire-and-forget
// methods only enqueue work and return once the task is accepted; evaluation
// errors surface in the job_run row and the runner's log. The *Now methods run
// inline and return the outcome to the caller.
type Dispatcher struct {
	log       *logger.Logger
	submitter TaskSubmitter
	evaluator *Evaluator
	batch     *BatchEvaluator
}

func NewDispatcher(baseLog *logger.Logger, submitter TaskSubmitter, evaluator *Evaluator, batch *BatchEvaluator) *Dispatcher {
	return &Dispatcher{
		log:       baseLog.With("service", "RiskDispatcher"),
		submitter: submitter,
		evaluator: evaluator,
		batch:     batch,
	}
}

func (d *Dispatcher) StudentCreated(ctx context.Context, studentID uuid.UUID) (*types.JobRun, error) {
	return d.submitStudent(ctx, studentID, ReasonStudentCreated)
}

func (d *Dispatcher) StudentUpdated(ctx context.Context, studentID uuid.UUID) (*types.JobRun, error) {
	return d.submitStudent(ctx, studentID, ReasonStudentUpdated)
}

func (d *Dispatcher) AttendanceRecorded(ctx context.Context, studentID uuid.UUID) (*types.JobRun, error) {
	return d.submitStudent(ctx, studentID, ReasonAttendance)
}

func (d *Dispatcher) ScheduledRecompute(ctx context.Context) (*types.JobRun, error) {
	return d.submit(ctx, runtime.Task{JobType: JobTypeEvaluateAll, Reason: ReasonScheduled})
}

func (d *Dispatcher) PendingSweep(ctx context.Context) (*types.JobRun, error) {
	return d.submit(ctx, runtime.Task{JobType: JobTypeEvaluatePending, Reason: ReasonPendingSweep})
}

func (d *Dispatcher) ReconcileAlerts(ctx context.Context) (*types.JobRun, error) {
	return d.submit(ctx, runtime.Task{JobType: JobTypeReconcileAlerts, Reason: ReasonScheduled})
}

// RecalculateNow evaluates one student inline. Scoring failures are returned
// as errors wrapping scoring.ErrScoringUnavailable.
func (d *Dispatcher) RecalculateNow(ctx context.Context, studentID uuid.UUID) (*EvaluationResult, error) {
	return d.evaluator.Evaluate(ctx, studentID, ReasonManual)
}

func (d *Dispatcher) RecalculateAllNow(ctx context.Context) (BatchResult, error) {
	return d.batch.EvaluateAll(ctx, ReasonManualBatch)
}

func (d *Dispatcher) RecalculatePendingNow(ctx context.Context) (BatchResult, error) {
	return d.batch.EvaluatePending(ctx, ReasonManualBatch)
}

func (d *Dispatcher) submitStudent(ctx context.Context, studentID uuid.UUID, reason string) (*types.JobRun, error) {
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id")
	}
	id := studentID
	return d.submit(ctx, runtime.Task{
		JobType:    JobTypeEvaluate,
		EntityType: entityTypeStudent,
		EntityID:   &id,
		Reason:     reason,
	})
}

func (d *Dispatcher) submit(ctx context.Context, task runtime.Task) (*types.JobRun, error) {
	job, err := d.submitter.Submit(ctx, task)
	if err != nil {
		d.log.Warn("Risk task not accepted",
			"job_type", task.JobType,
			"entity_id", task.EntityID,
			"reason", task.Reason,
			"error", err,
		)
		return job, fmt.Errorf("submit %s: %w", task.JobType, err)
	}
	return job, nil
}
