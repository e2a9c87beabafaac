package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/repos/jobs"
	"github.com/yungbote/riskwatch-backend/internal/data/repos/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type StudentRepo = risk.StudentRepo
type AlertRepo = risk.AlertRepo
type MentorRepo = risk.MentorRepo
type JobRunRepo = jobs.JobRunRepo

type ResultWrite = risk.ResultWrite
type AlertUpdate = risk.AlertUpdate
type AlertWriteSet = risk.AlertWriteSet
type AlertWriteResult = risk.AlertWriteResult

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return risk.NewStudentRepo(db, baseLog)
}
func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return risk.NewAlertRepo(db, baseLog)
}
func NewMentorRepo(db *gorm.DB, baseLog *logger.Logger) MentorRepo {
	return risk.NewMentorRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
