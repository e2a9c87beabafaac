package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/clients/scoring"
	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	"github.com/yungbote/riskwatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
)

// stubScorer answers by attendance percentage, which tests use as a per-student key.
type stubScorer struct {
	mu      sync.Mutex
	calls   int32
	results map[float64]scoring.Result
	errs    map[float64]error
	def     *scoring.Result
	hook    func(f scoring.Features)
}

func newStubScorer() *stubScorer {
	return &stubScorer{results: map[float64]scoring.Result{}, errs: map[float64]error{}}
}

func (s *stubScorer) set(attendance float64, cat types.RiskCategory, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[attendance] = scoring.Result{Score: score, Category: cat, Reasons: []string{"stub"}, ModelID: "stub", ModelVersion: "v1"}
	delete(s.errs, attendance)
}

func (s *stubScorer) fail(attendance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[attendance] = &scoring.ScoringError{Kind: scoring.KindHTTP, StatusCode: 503, Attempts: 2, Err: errors.New("unavailable")}
}

func (s *stubScorer) Evaluate(ctx context.Context, f scoring.Features) (scoring.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.hook != nil {
		s.hook(f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[f.AttendancePercentage]; ok {
		return scoring.Result{}, err
	}
	if r, ok := s.results[f.AttendancePercentage]; ok {
		return r, nil
	}
	if s.def != nil {
		return *s.def, nil
	}
	return scoring.Result{}, &scoring.ScoringError{Kind: scoring.KindMalformed, Err: errors.New("no stub result")}
}

// blockingScorer never answers until the test ends.
type blockingScorer struct{ release chan struct{} }

func (b blockingScorer) Evaluate(ctx context.Context, f scoring.Features) (scoring.Result, error) {
	<-b.release
	return scoring.Result{Score: 99, Category: types.RiskCategoryHigh, Reasons: []string{}}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type testEnv struct {
	ctx      context.Context
	db       *gorm.DB
	students repos.StudentRepo
	alerts   repos.AlertRepo
	mentors  repos.MentorRepo
	events   *events.Recorder
	sync     *AlertSynchronizer
	scorer   *stubScorer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	env := &testEnv{
		ctx:      context.Background(),
		db:       db,
		students: repos.NewStudentRepo(db, log),
		alerts:   repos.NewAlertRepo(db, log),
		mentors:  repos.NewMentorRepo(db, log),
		events:   &events.Recorder{},
		scorer:   newStubScorer(),
	}
	env.sync = NewAlertSynchronizer(log, env.alerts, env.mentors, env.events, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	env.sync.now = clock.Now
	return env
}

func (e *testEnv) evaluator(timeout time.Duration, scorer Scorer) *Evaluator {
	if scorer == nil {
		scorer = e.scorer
	}
	return NewEvaluator(e.sync.log, e.students, scorer, e.sync, timeout, nil)
}

func (e *testEnv) batch(chunk int, scorer Scorer) *BatchEvaluator {
	if scorer == nil {
		scorer = e.scorer
	}
	return NewBatchEvaluator(e.sync.log, e.students, scorer, e.sync, time.Second, chunk, 0, nil)
}

func (e *testEnv) student(t *testing.T, id uuid.UUID) *types.Student {
	t.Helper()
	s, err := e.students.GetByID(dbctx.Context{Ctx: e.ctx}, id)
	if err != nil || s == nil {
		t.Fatalf("load student %s: %v", id, err)
	}
	return s
}

func (e *testEnv) active(t *testing.T, id uuid.UUID) *types.RiskAlert {
	t.Helper()
	a, err := e.alerts.GetActiveByStudent(dbctx.Context{Ctx: e.ctx}, id, types.AlertTypeRisk)
	if err != nil {
		t.Fatalf("load active alert: %v", err)
	}
	return a
}

func (e *testEnv) activeCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	n, err := e.alerts.CountActiveByStudent(dbctx.Context{Ctx: e.ctx}, id, types.AlertTypeRisk)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	return n
}

func withAttendance(v float64) func(*types.Student) {
	return func(s *types.Student) { s.AttendancePercentage = &v }
}

func scoredAs(cat types.RiskCategory, score float64) func(*types.Student) {
	return func(s *types.Student) {
		s.RiskCategory = &cat
		s.RiskScore = &score
		s.RiskStatus = types.RiskStatusCalculated
	}
}

type scorerFunc func() error

func (f scorerFunc) Evaluate(context.Context, scoring.Features) (scoring.Result, error) {
	return scoring.Result{}, f()
}
