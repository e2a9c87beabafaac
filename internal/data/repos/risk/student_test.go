package risk

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/riskwatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
)

func TestStudentRepo_ProcessingAndResults(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStudentRepo(db, testutil.Logger(t))

	s := testutil.SeedStudent(t, ctx, db, "S-1")
	if s.RiskStatus != types.RiskStatusPending {
		t.Fatalf("new student status=%s", s.RiskStatus)
	}

	first := uuid.New()
	n, err := repo.MarkProcessing(dbc, []uuid.UUID{s.ID}, first, "ManualTrigger")
	if err != nil || n != 1 {
		t.Fatalf("MarkProcessing: n=%d err=%v", n, err)
	}

	// A second trigger takes the student over; the first attempt can no longer write.
	second := uuid.New()
	if n, err := repo.MarkProcessing(dbc, []uuid.UUID{s.ID}, second, "AttendanceUpdate"); err != nil || n != 1 {
		t.Fatalf("MarkProcessing (takeover): n=%d err=%v", n, err)
	}
	ok, err := repo.ApplyResult(dbc, ResultWrite{StudentID: s.ID, AttemptID: first, Success: true, Score: 90, Category: types.RiskCategoryHigh})
	if err != nil {
		t.Fatalf("ApplyResult stale: %v", err)
	}
	if ok {
		t.Fatalf("stale attempt must not write")
	}

	ok, err = repo.ApplyResult(dbc, ResultWrite{
		StudentID: s.ID, AttemptID: second, Success: true,
		Score: 42, Category: types.RiskCategoryMedium, Reasons: []string{"Low Attendance (60%)"},
		ModelID: "dropout-risk", ModelVersion: "v4", Reason: "AttendanceUpdate", At: time.Now(),
	})
	if err != nil || !ok {
		t.Fatalf("ApplyResult: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, s.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RiskStatus != types.RiskStatusCalculated || got.Category() != types.RiskCategoryMedium || got.Score() != 42 {
		t.Fatalf("unexpected result: status=%s category=%s score=%v", got.RiskStatus, got.Category(), got.Score())
	}
	if len(got.RiskReasons) != 1 || got.RiskTrigger != "AttendanceUpdate" || got.RiskModelVersion != "v4" {
		t.Fatalf("unexpected audit fields: %+v", got)
	}

	// CALCULATED -> FAILED directly is illegal and must not apply.
	if ok, _ := repo.ApplyResult(dbc, ResultWrite{StudentID: s.ID, AttemptID: second, Success: false}); ok {
		t.Fatalf("write outside PROCESSING must be rejected")
	}

	// A failure keeps the previous score/category.
	third := uuid.New()
	if _, err := repo.MarkProcessing(dbc, []uuid.UUID{s.ID}, third, "ManualTrigger"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if ok, err := repo.ApplyResult(dbc, ResultWrite{StudentID: s.ID, AttemptID: third, Success: false}); err != nil || !ok {
		t.Fatalf("ApplyResult failure: ok=%v err=%v", ok, err)
	}
	got, _ = repo.GetByID(dbc, s.ID)
	if got.RiskStatus != types.RiskStatusFailed || got.Score() != 42 || got.Category() != types.RiskCategoryMedium {
		t.Fatalf("failure should keep prior data: status=%s score=%v category=%s", got.RiskStatus, got.Score(), got.Category())
	}
}

func TestStudentRepo_ApplyResultsAndInputs(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStudentRepo(db, testutil.Logger(t))

	a := testutil.SeedStudent(t, ctx, db, "S-A")
	b := testutil.SeedStudent(t, ctx, db, "S-B")
	c := testutil.SeedStudent(t, ctx, db, "S-C")

	attempt := uuid.New()
	if n, err := repo.MarkProcessing(dbc, []uuid.UUID{a.ID, b.ID}, attempt, "ScheduledBatch"); err != nil || n != 2 {
		t.Fatalf("MarkProcessing: n=%d err=%v", n, err)
	}

	applied, err := repo.ApplyResults(dbc, []ResultWrite{
		{StudentID: a.ID, AttemptID: attempt, Success: true, Score: 10, Category: types.RiskCategoryLow},
		{StudentID: b.ID, AttemptID: attempt, Success: false},
		{StudentID: c.ID, AttemptID: attempt, Success: true, Score: 80, Category: types.RiskCategoryHigh},
	})
	if err != nil {
		t.Fatalf("ApplyResults: %v", err)
	}
	if !applied[a.ID] || !applied[b.ID] || applied[c.ID] {
		t.Fatalf("unexpected applied set: %v", applied)
	}

	pending, err := repo.ListPending(dbc, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected b (FAILED) and c (PENDING), got %d", len(pending))
	}

	if err := repo.UpdateInputs(dbc, a.ID, map[string]interface{}{"risk_score": 1}); err == nil {
		t.Fatalf("UpdateInputs must refuse risk columns")
	}
	if err := repo.UpdateInputs(dbc, a.ID, map[string]interface{}{"attendance_percentage": 55.0}); err != nil {
		t.Fatalf("UpdateInputs: %v", err)
	}
	got, _ := repo.GetByID(dbc, a.ID)
	if got.AttendancePercentage == nil || *got.AttendancePercentage != 55 {
		t.Fatalf("attendance not updated: %v", got.AttendancePercentage)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("missing student should be nil,nil; got %v, %v", missing, err)
	}
}

func TestStudentRepo_ListPendingIncludesOrphanedAttempts(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStudentRepo(db, testutil.Logger(t))

	pending := testutil.SeedStudent(t, ctx, db, "S-P")
	orphan := testutil.SeedStudent(t, ctx, db, "S-O")
	live := testutil.SeedStudent(t, ctx, db, "S-L")
	orphanAttempt, liveAttempt := uuid.New(), uuid.New()
	if _, err := repo.MarkProcessing(dbc, []uuid.UUID{orphan.ID}, orphanAttempt, "ManualTrigger"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if _, err := repo.MarkProcessing(dbc, []uuid.UUID{live.ID}, liveAttempt, "ScheduledBatch"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	hourAgo := time.Now().Add(-time.Hour)
	for _, id := range []uuid.UUID{orphan.ID, live.ID} {
		if err := db.Model(&types.Student{}).Where("id = ?", id).UpdateColumn("updated_at", hourAgo).Error; err != nil {
			t.Fatalf("age row: %v", err)
		}
	}
	// The live batch heartbeats its rows; the orphaned attempt does not.
	if n, err := repo.TouchAttempt(dbc, liveAttempt); err != nil || n != 1 {
		t.Fatalf("TouchAttempt: n=%d err=%v", n, err)
	}

	got, err := repo.ListPending(dbc, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for _, s := range got {
		ids[s.ID] = true
	}
	if len(got) != 2 || !ids[pending.ID] || !ids[orphan.ID] {
		t.Fatalf("expected pending and orphaned students, got %d rows", len(got))
	}
}
