package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain/jobs"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	ListRecent(dbc dbctx.Context, jobType string, limit int) ([]*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := dbc.DB(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := dbc.DB(r.db).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRunRepo) ListRecent(dbc dbctx.Context, jobType string, limit int) ([]*types.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := dbc.DB(r.db).Order("created_at DESC").Limit(limit)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var out []*types.JobRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := dbc.DB(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
