package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobRun is the audit row of one background task submitted to the runner.
type JobRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType    string         `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID   *uuid.UUID     `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`
	Reason     string         `gorm:"column:reason" json:"reason,omitempty"`
	Payload    datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	Attempts   int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	Result     datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
