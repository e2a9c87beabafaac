package risk

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

// ResultWrite is the outcome of one scoring attempt, applied only while the
// attempt still owns the student (status PROCESSING with a matching token).
type ResultWrite struct {
	StudentID    uuid.UUID
	AttemptID    uuid.UUID
	Success      bool
	Score        float64
	Category     types.RiskCategory
	Reasons      []string
	ModelID      string
	ModelVersion string
	Reason       string
	At           time.Time
}

type StudentRepo interface {
	Create(dbc dbctx.Context, students []*types.Student) ([]*types.Student, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Student, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Student, error)
	ListAll(dbc dbctx.Context) ([]*types.Student, error)
	ListPending(dbc dbctx.Context, staleBefore time.Time) ([]*types.Student, error)
	UpdateInputs(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkProcessing(dbc dbctx.Context, ids []uuid.UUID, attemptID uuid.UUID, reason string) (int64, error)
	TouchAttempt(dbc dbctx.Context, attemptID uuid.UUID) (int64, error)
	ApplyResult(dbc dbctx.Context, w ResultWrite) (bool, error)
	ApplyResults(dbc dbctx.Context, writes []ResultWrite) (map[uuid.UUID]bool, error)
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{
		db:  db,
		log: baseLog.With("repo", "StudentRepo"),
	}
}

func (r *studentRepo) Create(dbc dbctx.Context, students []*types.Student) ([]*types.Student, error) {
	if len(students) == 0 {
		return []*types.Student{}, nil
	}
	if err := dbc.DB(r.db).Create(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Student, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.Student
	err := dbc.DB(r.db).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studentRepo) GetByCode(dbc dbctx.Context, code string) (*types.Student, error) {
	if code == "" {
		return nil, nil
	}
	var s types.Student
	err := dbc.DB(r.db).Where("student_code = ?", code).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studentRepo) ListAll(dbc dbctx.Context) ([]*types.Student, error) {
	var out []*types.Student
	if err := dbc.DB(r.db).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListPending returns students that need scoring: never scored, last attempt
// failed, or stuck PROCESSING since before staleBefore (an attempt orphaned by a crash).
func (r *studentRepo) ListPending(dbc dbctx.Context, staleBefore time.Time) ([]*types.Student, error) {
	var out []*types.Student
	if err := dbc.DB(r.db).
		Where("risk_status IN ? OR (risk_status = ? AND updated_at < ?)",
			[]types.RiskStatus{types.RiskStatusPending, types.RiskStatusFailed},
			types.RiskStatusProcessing, staleBefore).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInputs changes feature inputs only. Risk columns are owned by the evaluators.
func (r *studentRepo) UpdateInputs(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	for k := range updates {
		if isRiskColumn(k) {
			return errors.New("risk columns cannot be updated as inputs: " + k)
		}
	}
	updates["updated_at"] = time.Now()
	return dbc.DB(r.db).Model(&types.Student{}).Where("id = ?", id).Updates(updates).Error
}

// MarkProcessing moves students into PROCESSING under attemptID before any scoring call.
// Students already PROCESSING are taken over by the new attempt; the older attempt's
// result will no longer match and gets discarded.
func (r *studentRepo) MarkProcessing(dbc dbctx.Context, ids []uuid.UUID, attemptID uuid.UUID, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// Includes PROCESSING itself: the takeover exception to ValidTransition.
	from := types.AttemptStartable()
	res := dbc.DB(r.db).
		Model(&types.Student{}).
		Where("id IN ?", ids).
		Where("risk_status IN ?", from).
		Updates(map[string]interface{}{
			"risk_status":     types.RiskStatusProcessing,
			"risk_attempt_id": attemptID,
			"risk_trigger":    reason,
			"updated_at":      time.Now(),
		})
	return res.RowsAffected, res.Error
}

// TouchAttempt bumps updated_at on rows still owned by attemptID so a long
// batch is not mistaken for an orphaned attempt.
func (r *studentRepo) TouchAttempt(dbc dbctx.Context, attemptID uuid.UUID) (int64, error) {
	if attemptID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Student{}).
		Where("risk_status = ? AND risk_attempt_id = ?", types.RiskStatusProcessing, attemptID).
		Update("updated_at", time.Now())
	return res.RowsAffected, res.Error
}

func (r *studentRepo) ApplyResult(dbc dbctx.Context, w ResultWrite) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.Student{}).
		Where("id = ? AND risk_status = ? AND risk_attempt_id = ?", w.StudentID, types.RiskStatusProcessing, w.AttemptID).
		Updates(resultUpdates(w))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyResults writes a whole batch in one transaction. The returned map holds
// the students whose write was accepted.
func (r *studentRepo) ApplyResults(dbc dbctx.Context, writes []ResultWrite) (map[uuid.UUID]bool, error) {
	applied := make(map[uuid.UUID]bool, len(writes))
	if len(writes) == 0 {
		return applied, nil
	}
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			res := tx.Model(&types.Student{}).
				Where("id = ? AND risk_status = ? AND risk_attempt_id = ?", w.StudentID, types.RiskStatusProcessing, w.AttemptID).
				Updates(resultUpdates(w))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				applied[w.StudentID] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// resultUpdates never touches score, category or reasons on failure so the
// last valid evaluation survives a failed one.
func resultUpdates(w ResultWrite) map[string]interface{} {
	at := w.At
	if at.IsZero() {
		at = time.Now()
	}
	if !w.Success {
		return map[string]interface{}{
			"risk_status":     types.RiskStatusFailed,
			"risk_updated_at": at,
			"updated_at":      at,
		}
	}
	reasons := w.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return map[string]interface{}{
		"risk_status":        types.RiskStatusCalculated,
		"risk_score":         w.Score,
		"risk_category":      string(w.Category),
		"risk_reasons":       datatypes.JSONSlice[string](reasons),
		"risk_model_id":      w.ModelID,
		"risk_model_version": w.ModelVersion,
		"risk_trigger":       w.Reason,
		"risk_updated_at":    at,
		"updated_at":         at,
	}
}

func isRiskColumn(col string) bool {
	switch col {
	case "risk_score", "risk_category", "risk_reasons", "risk_status", "risk_model_id",
		"risk_model_version", "risk_updated_at", "risk_trigger", "risk_attempt_id":
		return true
	}
	return false
}
