package risk

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type AlertUpdate struct {
	ID      uuid.UUID
	Updates map[string]interface{}
}

// AlertWriteSet is the bulk counterpart of the single-alert calls: inserts,
// field updates and deactivations applied in one transaction.
type AlertWriteSet struct {
	Creates       []*types.RiskAlert
	Updates       []AlertUpdate
	Deactivations []AlertUpdate
}

func (s AlertWriteSet) Empty() bool {
	return len(s.Creates) == 0 && len(s.Updates) == 0 && len(s.Deactivations) == 0
}

type AlertWriteResult struct {
	Created     int64
	Skipped     int64
	Updated     int64
	Deactivated int64
}

type AlertRepo interface {
	GetActiveByStudent(dbc dbctx.Context, studentID uuid.UUID, alertType string) (*types.RiskAlert, error)
	GetActiveByStudents(dbc dbctx.Context, studentIDs []uuid.UUID, alertType string) ([]*types.RiskAlert, error)
	ListByStudent(dbc dbctx.Context, studentID uuid.UUID) ([]*types.RiskAlert, error)
	CountActiveByStudent(dbc dbctx.Context, studentID uuid.UUID, alertType string) (int64, error)
	CreateIfNoneActive(dbc dbctx.Context, alert *types.RiskAlert) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	BulkWrite(dbc dbctx.Context, set AlertWriteSet) (AlertWriteResult, error)
	ListDuplicateActive(dbc dbctx.Context, alertType string) (map[uuid.UUID][]*types.RiskAlert, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{
		db:  db,
		log: baseLog.With("repo", "AlertRepo"),
	}
}

// GetActiveByStudent returns the newest active alert, or nil.
func (r *alertRepo) GetActiveByStudent(dbc dbctx.Context, studentID uuid.UUID, alertType string) (*types.RiskAlert, error) {
	if studentID == uuid.Nil {
		return nil, nil
	}
	var a types.RiskAlert
	err := dbc.DB(r.db).
		Where("student_id = ? AND alert_type = ? AND active = ?", studentID, alertType, true).
		Order("last_updated_at DESC").
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepo) GetActiveByStudents(dbc dbctx.Context, studentIDs []uuid.UUID, alertType string) ([]*types.RiskAlert, error) {
	var out []*types.RiskAlert
	if len(studentIDs) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("student_id IN ? AND alert_type = ? AND active = ?", studentIDs, alertType, true).
		Order("last_updated_at ASC").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepo) ListByStudent(dbc dbctx.Context, studentID uuid.UUID) ([]*types.RiskAlert, error) {
	var out []*types.RiskAlert
	if err := dbc.DB(r.db).
		Where("student_id = ?", studentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepo) CountActiveByStudent(dbc dbctx.Context, studentID uuid.UUID, alertType string) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.RiskAlert{}).
		Where("student_id = ? AND alert_type = ? AND active = ?", studentID, alertType, true).
		Count(&n).Error
	return n, err
}

// CreateIfNoneActive inserts alert unless the student already has an active one
// of the same type. It returns false when the insert lost to an existing row.
func (r *alertRepo) CreateIfNoneActive(dbc dbctx.Context, alert *types.RiskAlert) (bool, error) {
	if alert == nil {
		return false, nil
	}
	res := dbc.DB(r.db).Clauses(onActiveConflictDoNothing()).Create(alert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *alertRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.RiskAlert{}).Where("id = ?", id).Updates(updates).Error
}

func (r *alertRepo) BulkWrite(dbc dbctx.Context, set AlertWriteSet) (AlertWriteResult, error) {
	var out AlertWriteResult
	if set.Empty() {
		return out, nil
	}
	now := time.Now()
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if len(set.Creates) > 0 {
			res := tx.Clauses(onActiveConflictDoNothing()).Create(&set.Creates)
			if res.Error != nil {
				return res.Error
			}
			out.Created = res.RowsAffected
			out.Skipped = int64(len(set.Creates)) - res.RowsAffected
		}
		for _, u := range set.Updates {
			n, err := updateRow(tx, u, now)
			if err != nil {
				return err
			}
			out.Updated += n
		}
		for _, u := range set.Deactivations {
			n, err := updateRow(tx, u, now)
			if err != nil {
				return err
			}
			out.Deactivated += n
		}
		return nil
	})
	if err != nil {
		return AlertWriteResult{}, err
	}
	return out, nil
}

// ListDuplicateActive groups students holding more than one active alert of alertType.
func (r *alertRepo) ListDuplicateActive(dbc dbctx.Context, alertType string) (map[uuid.UUID][]*types.RiskAlert, error) {
	out := map[uuid.UUID][]*types.RiskAlert{}
	var studentIDs []uuid.UUID
	if err := dbc.DB(r.db).
		Model(&types.RiskAlert{}).
		Where("alert_type = ? AND active = ?", alertType, true).
		Group("student_id").
		Having("COUNT(*) > 1").
		Pluck("student_id", &studentIDs).Error; err != nil {
		return nil, err
	}
	if len(studentIDs) == 0 {
		return out, nil
	}
	rows, err := r.GetActiveByStudents(dbc, studentIDs, alertType)
	if err != nil {
		return nil, err
	}
	for _, a := range rows {
		out[a.StudentID] = append(out[a.StudentID], a)
	}
	return out, nil
}

func updateRow(tx *gorm.DB, u AlertUpdate, now time.Time) (int64, error) {
	if u.ID == uuid.Nil || len(u.Updates) == 0 {
		return 0, nil
	}
	if _, ok := u.Updates["updated_at"]; !ok {
		u.Updates["updated_at"] = now
	}
	res := tx.Model(&types.RiskAlert{}).Where("id = ?", u.ID).Updates(u.Updates)
	return res.RowsAffected, res.Error
}

// onActiveConflictDoNothing targets the partial unique index on active alerts.
// The predicate text must match the index definition for SQLite to accept it.
func onActiveConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{
		Columns:     []clause.Column{{Name: "student_id"}, {Name: "alert_type"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "active = true"}}},
		DoNothing:   true,
	}
}
