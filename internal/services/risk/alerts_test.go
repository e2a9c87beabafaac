package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/riskwatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &types.Student{ID: uuid.New(), Name: "Asha"}
	mentor := uuid.New()
	active := func(level types.RiskCategory, mentorID *uuid.UUID) *types.RiskAlert {
		return &types.RiskAlert{ID: uuid.New(), StudentID: s.ID, RiskLevel: level, Active: true, MentorID: mentorID}
	}

	cases := []struct {
		name      string
		snap      RiskSnapshot
		active    *types.RiskAlert
		want      SyncAction
		wantEvent events.AlertEventType
		wantMsg   string
	}{
		{name: "low without alert", snap: RiskSnapshot{types.RiskCategoryLow, 12}, want: SyncNoop},
		{name: "high creates", snap: RiskSnapshot{types.RiskCategoryHigh, 82.4}, want: SyncCreated, wantEvent: events.AlertCreated, wantMsg: "Risk is High (82%)"},
		{name: "same label refreshes", snap: RiskSnapshot{types.RiskCategoryHigh, 95}, active: active(types.RiskCategoryHigh, &mentor), want: SyncRefreshed},
		{name: "downgrade changes", snap: RiskSnapshot{types.RiskCategoryMedium, 49.6}, active: active(types.RiskCategoryHigh, &mentor), want: SyncChanged, wantEvent: events.AlertDeescalated, wantMsg: "Risk changed to Medium (50%)"},
		{name: "upgrade changes", snap: RiskSnapshot{types.RiskCategoryHigh, 71}, active: active(types.RiskCategoryMedium, nil), want: SyncChanged, wantEvent: events.AlertEscalated, wantMsg: "Risk changed to High (71%)"},
		{name: "low resolves", snap: RiskSnapshot{types.RiskCategoryLow, 20}, active: active(types.RiskCategoryMedium, nil), want: SyncResolved, wantEvent: events.AlertResolved, wantMsg: "Risk resolved (Score: 20%)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := decide(s, tc.snap, tc.active, &mentor, now)
			if d.action != tc.want {
				t.Fatalf("action=%s want %s", d.action, tc.want)
			}
			if tc.wantEvent == "" {
				if d.event != nil {
					t.Fatalf("unexpected event %s", d.event.Type)
				}
				return
			}
			if d.event == nil || d.event.Type != tc.wantEvent {
				t.Fatalf("event=%+v want %s", d.event, tc.wantEvent)
			}
			if d.event.Message != tc.wantMsg {
				t.Fatalf("message=%q want %q", d.event.Message, tc.wantMsg)
			}
		})
	}
}

func TestDecide_RefreshLeavesMessageAndLastUpdated(t *testing.T) {
	s := &types.Student{ID: uuid.New()}
	a := &types.RiskAlert{ID: uuid.New(), RiskLevel: types.RiskCategoryHigh, Active: true}
	d := decide(s, RiskSnapshot{types.RiskCategoryHigh, 99}, a, nil, time.Now())
	if _, ok := d.updates["message"]; ok {
		t.Fatalf("refresh must not rewrite message")
	}
	if _, ok := d.updates["last_updated_at"]; ok {
		t.Fatalf("refresh must not bump last_updated_at")
	}
	if d.updates["risk_score"] != float64(99) {
		t.Fatalf("refresh should record the new score, got %v", d.updates["risk_score"])
	}
}

func TestSync_IdempotentForSameLevel(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1", scoredAs(types.RiskCategoryHigh, 82))

	action, err := env.sync.Sync(env.ctx, st)
	if err != nil || action != SyncCreated {
		t.Fatalf("first sync: action=%s err=%v", action, err)
	}
	first := env.active(t, st.ID)

	for i := 0; i < 3; i++ {
		action, err = env.sync.Sync(env.ctx, st)
		if err != nil || action != SyncRefreshed {
			t.Fatalf("repeat sync %d: action=%s err=%v", i, action, err)
		}
	}
	last := env.active(t, st.ID)
	if last.ID != first.ID {
		t.Fatalf("alert replaced: %s -> %s", first.ID, last.ID)
	}
	if last.Message != first.Message || !last.LastUpdatedAt.Equal(first.LastUpdatedAt) {
		t.Fatalf("repeat sync changed the alert: %+v -> %+v", first, last)
	}
	if !last.LastEvaluatedAt.After(first.LastEvaluatedAt) {
		t.Fatalf("lastEvaluatedAt not advanced")
	}
	if n := env.activeCount(t, st.ID); n != 1 {
		t.Fatalf("active alerts=%d want 1", n)
	}
	if got := env.events.Types(); len(got) != 1 || got[0] != events.AlertCreated {
		t.Fatalf("events=%v want one created", got)
	}
}

func TestSync_ScoreMoveWithinCategoryOnlyRefreshes(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1", scoredAs(types.RiskCategoryHigh, 71))
	if _, err := env.sync.Sync(env.ctx, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	before := env.active(t, st.ID)

	moved := *st
	score := 99.0
	moved.RiskScore = &score
	action, err := env.sync.Sync(env.ctx, &moved)
	if err != nil || action != SyncRefreshed {
		t.Fatalf("action=%s err=%v", action, err)
	}
	after := env.active(t, st.ID)
	if after.Message != before.Message {
		t.Fatalf("message changed: %q -> %q", before.Message, after.Message)
	}
	if after.RiskScore != 99 {
		t.Fatalf("snapshot score=%v want 99", after.RiskScore)
	}
}

func TestSync_ConcurrentCallsKeepOneActiveAlert(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1", scoredAs(types.RiskCategoryHigh, 80))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.sync.Sync(env.ctx, st); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("sync: %v", err)
	}
	if n := env.activeCount(t, st.ID); n != 1 {
		t.Fatalf("active alerts=%d want 1", n)
	}
}

func TestSync_LowWithoutAlertIsNoop(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1", scoredAs(types.RiskCategoryLow, 10))
	action, err := env.sync.Sync(env.ctx, st)
	if err != nil || action != SyncNoop {
		t.Fatalf("action=%s err=%v", action, err)
	}
	rows, err := env.alerts.ListByStudent(dbctx.Context{Ctx: env.ctx}, st.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
}

func TestSync_UnscoredStudentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1")
	action, err := env.sync.Sync(env.ctx, st)
	if err != nil || action != SyncNoop {
		t.Fatalf("action=%s err=%v", action, err)
	}
}

func TestSync_MentorLinkHeals(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1",
		scoredAs(types.RiskCategoryMedium, 55),
		func(s *types.Student) { s.AssignedMentorCode = "M-7" },
	)

	if _, err := env.sync.Sync(env.ctx, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if a := env.active(t, st.ID); a == nil || a.MentorID != nil {
		t.Fatalf("alert should exist without mentor link: %+v", a)
	}

	m := testutil.SeedMentor(t, env.ctx, env.db, "M-7")
	if _, err := env.sync.Sync(env.ctx, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	a := env.active(t, st.ID)
	if a.MentorID == nil || *a.MentorID != m.ID {
		t.Fatalf("mentor link not healed: %+v", a.MentorID)
	}
}

func TestSyncAll_BulkCounts(t *testing.T) {
	env := newTestEnv(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := testutil.SeedMentor(t, env.ctx, env.db, "M-1")

	resolved := testutil.SeedStudent(t, env.ctx, env.db, "S-resolve")
	resolvedAlert := testutil.SeedActiveAlert(t, env.ctx, env.db, resolved.ID, types.RiskCategoryMedium, at)
	created := testutil.SeedStudent(t, env.ctx, env.db, "S-create", func(s *types.Student) { s.AssignedMentorCode = "M-1" })
	refreshed := testutil.SeedStudent(t, env.ctx, env.db, "S-refresh")
	testutil.SeedActiveAlert(t, env.ctx, env.db, refreshed.ID, types.RiskCategoryMedium, at)
	changed := testutil.SeedStudent(t, env.ctx, env.db, "S-change")
	changedAlert := testutil.SeedActiveAlert(t, env.ctx, env.db, changed.ID, types.RiskCategoryHigh, at)
	quiet := testutil.SeedStudent(t, env.ctx, env.db, "S-quiet")

	students := []*types.Student{resolved, created, refreshed, changed, quiet}
	snaps := map[uuid.UUID]RiskSnapshot{
		resolved.ID:  {types.RiskCategoryLow, 15},
		created.ID:   {types.RiskCategoryHigh, 90},
		refreshed.ID: {types.RiskCategoryMedium, 52},
		changed.ID:   {types.RiskCategoryMedium, 45},
		quiet.ID:     {types.RiskCategoryLow, 5},
	}
	counts, err := env.sync.SyncAll(env.ctx, students, snaps)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	want := SyncCounts{Created: 1, Updated: 1, Refreshed: 1, Deactivated: 1, Unchanged: 1}
	if counts != want {
		t.Fatalf("counts=%+v want %+v", counts, want)
	}

	if a := env.active(t, resolved.ID); a != nil {
		t.Fatalf("resolved student still has active alert %s", a.ID)
	}
	rows, _ := env.alerts.ListByStudent(dbctx.Context{Ctx: env.ctx}, resolved.ID)
	if len(rows) != 1 || rows[0].ID != resolvedAlert.ID || rows[0].Message != "Risk resolved (Score: 15%)" || rows[0].ResolvedAt == nil {
		t.Fatalf("resolved history row wrong: %+v", rows)
	}
	c := env.active(t, created.ID)
	if c == nil || c.RiskLevel != types.RiskCategoryHigh || c.MentorID == nil || *c.MentorID != m.ID {
		t.Fatalf("created alert wrong: %+v", c)
	}
	ch := env.active(t, changed.ID)
	if ch == nil || ch.ID != changedAlert.ID || ch.RiskLevel != types.RiskCategoryMedium || ch.Message != "Risk changed to Medium (45%)" {
		t.Fatalf("changed alert wrong: %+v", ch)
	}

	got := map[events.AlertEventType]int{}
	for _, typ := range env.events.Types() {
		got[typ]++
	}
	if got[events.AlertCreated] != 1 || got[events.AlertDeescalated] != 1 || got[events.AlertResolved] != 1 || len(env.events.Events()) != 3 {
		t.Fatalf("events=%v", env.events.Types())
	}
}

func TestSyncAll_IgnoresStudentsWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t)
	st := testutil.SeedStudent(t, env.ctx, env.db, "S1")
	counts, err := env.sync.SyncAll(env.ctx, []*types.Student{st, nil}, map[uuid.UUID]RiskSnapshot{})
	if err != nil || counts != (SyncCounts{}) {
		t.Fatalf("counts=%+v err=%v", counts, err)
	}
}
