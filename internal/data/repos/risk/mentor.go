package risk

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type MentorRepo interface {
	Create(dbc dbctx.Context, mentors []*types.Mentor) ([]*types.Mentor, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Mentor, error)
	GetByCodes(dbc dbctx.Context, codes []string) ([]*types.Mentor, error)
}

type mentorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMentorRepo(db *gorm.DB, baseLog *logger.Logger) MentorRepo {
	return &mentorRepo{
		db:  db,
		log: baseLog.With("repo", "MentorRepo"),
	}
}

func (r *mentorRepo) Create(dbc dbctx.Context, mentors []*types.Mentor) ([]*types.Mentor, error) {
	if len(mentors) == 0 {
		return []*types.Mentor{}, nil
	}
	if err := dbc.DB(r.db).Create(&mentors).Error; err != nil {
		return nil, err
	}
	return mentors, nil
}

func (r *mentorRepo) GetByCode(dbc dbctx.Context, code string) (*types.Mentor, error) {
	if code == "" {
		return nil, nil
	}
	var m types.Mentor
	err := dbc.DB(r.db).Where("mentor_code = ?", code).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mentorRepo) GetByCodes(dbc dbctx.Context, codes []string) ([]*types.Mentor, error) {
	var out []*types.Mentor
	if len(codes) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("mentor_code IN ?", codes).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
