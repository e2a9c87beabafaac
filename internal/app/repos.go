package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type Repos struct {
	Student repos.StudentRepo
	Alert   repos.AlertRepo
	Mentor  repos.MentorRepo
	JobRun  repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Student: repos.NewStudentRepo(db, log),
		Alert:   repos.NewAlertRepo(db, log),
		Mentor:  repos.NewMentorRepo(db, log),
		JobRun:  repos.NewJobRunRepo(db, log),
	}
}
