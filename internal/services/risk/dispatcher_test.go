package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/riskwatch-backend/internal/data/repos/testutil"
	"github.com/yungbote/riskwatch-backend/internal/domain"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
)

type fakeSubmitter struct {
	tasks []runtime.Task
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, task runtime.Task) (*domain.JobRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &domain.JobRun{ID: uuid.New(), JobType: task.JobType, Status: domain.JobStatusQueued}, nil
}

func TestDispatcher_FireAndForgetTasks(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(testutil.Logger(t), sub, nil, nil)
	id := uuid.New()
	ctx := context.Background()

	calls := []func() (*domain.JobRun, error){
		func() (*domain.JobRun, error) { return d.StudentCreated(ctx, id) },
		func() (*domain.JobRun, error) { return d.StudentUpdated(ctx, id) },
		func() (*domain.JobRun, error) { return d.AttendanceRecorded(ctx, id) },
		func() (*domain.JobRun, error) { return d.ScheduledRecompute(ctx) },
		func() (*domain.JobRun, error) { return d.PendingSweep(ctx) },
		func() (*domain.JobRun, error) { return d.ReconcileAlerts(ctx) },
	}
	for i, call := range calls {
		if job, err := call(); err != nil || job == nil {
			t.Fatalf("call %d: job=%v err=%v", i, job, err)
		}
	}

	want := []struct{ jobType, reason string }{
		{JobTypeEvaluate, ReasonStudentCreated},
		{JobTypeEvaluate, ReasonStudentUpdated},
		{JobTypeEvaluate, ReasonAttendance},
		{JobTypeEvaluateAll, ReasonScheduled},
		{JobTypeEvaluatePending, ReasonPendingSweep},
		{JobTypeReconcileAlerts, ReasonScheduled},
	}
	if len(sub.tasks) != len(want) {
		t.Fatalf("tasks=%d want %d", len(sub.tasks), len(want))
	}
	for i, w := range want {
		got := sub.tasks[i]
		if got.JobType != w.jobType || got.Reason != w.reason {
			t.Fatalf("task %d = %s/%s want %s/%s", i, got.JobType, got.Reason, w.jobType, w.reason)
		}
		if w.jobType == JobTypeEvaluate && (got.EntityID == nil || *got.EntityID != id) {
			t.Fatalf("task %d missing entity id", i)
		}
	}
}

func TestDispatcher_RejectsNilStudent(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(testutil.Logger(t), sub, nil, nil)
	if _, err := d.StudentCreated(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("expected error for nil student id")
	}
	if len(sub.tasks) != 0 {
		t.Fatalf("task submitted for nil id")
	}
}

func TestDispatcher_SubmitErrorIsWrapped(t *testing.T) {
	sentinel := errors.New("queue full")
	d := NewDispatcher(testutil.Logger(t), &fakeSubmitter{err: sentinel}, nil, nil)
	if _, err := d.ScheduledRecompute(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("err=%v want wrapped sentinel", err)
	}
}

func TestDispatcher_RecalculateNow(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1", withAttendance(33))
	env.scorer.set(33, types.RiskCategoryMedium, 48)
	d := NewDispatcher(testutil.Logger(t), &fakeSubmitter{}, env.evaluator(time.Second, nil), env.batch(10, nil))

	res, err := d.RecalculateNow(env.ctx, st.ID)
	if err != nil {
		t.Fatalf("RecalculateNow: %v", err)
	}
	if res.Reason != ReasonManual || res.Category != types.RiskCategoryMedium || res.Alert != SyncCreated {
		t.Fatalf("result=%+v", res)
	}

	batch, err := d.RecalculateAllNow(env.ctx)
	if err != nil || batch.Processed != 1 || batch.Reason != ReasonManualBatch {
		t.Fatalf("batch=%+v err=%v", batch, err)
	}
	if batch.Alerts.Refreshed != 1 {
		t.Fatalf("alerts=%+v want one refresh", batch.Alerts)
	}
}
