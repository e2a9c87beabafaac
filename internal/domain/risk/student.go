package risk

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Student is the subject of risk scoring. Risk* columns are written only by the risk evaluators.
type Student struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudentCode        string    `gorm:"column:student_code;not null;uniqueIndex" json:"student_code"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	Email              string    `gorm:"column:email" json:"email,omitempty"`
	Course             string    `gorm:"column:course;not null;default:General" json:"course"`
	AssignedMentorCode string    `gorm:"column:assigned_mentor_code;index" json:"assigned_mentor_code,omitempty"`

	AttendancePercentage    *float64 `gorm:"column:attendance_percentage" json:"attendance_percentage,omitempty"`
	CGPA                    *float64 `gorm:"column:cgpa" json:"cgpa,omitempty"`
	FeeDelayDays            *float64 `gorm:"column:fee_delay_days" json:"fee_delay_days,omitempty"`
	ClassParticipationScore *float64 `gorm:"column:class_participation_score" json:"class_participation_score,omitempty"`
	AssignmentsCompleted    *float64 `gorm:"column:assignments_completed" json:"assignments_completed,omitempty"`

	RiskScore        *float64                    `gorm:"column:risk_score" json:"risk_score,omitempty"`
	RiskCategory     *RiskCategory               `gorm:"column:risk_category;type:varchar(16)" json:"risk_category,omitempty"`
	RiskReasons      datatypes.JSONSlice[string] `gorm:"column:risk_reasons" json:"risk_reasons"`
	RiskStatus       RiskStatus                  `gorm:"column:risk_status;type:varchar(16);not null;default:PENDING;index" json:"risk_status"`
	RiskModelID      string                      `gorm:"column:risk_model_id" json:"risk_model_id,omitempty"`
	RiskModelVersion string                      `gorm:"column:risk_model_version" json:"risk_model_version,omitempty"`
	RiskUpdatedAt    *time.Time                  `gorm:"column:risk_updated_at" json:"risk_updated_at,omitempty"`
	RiskTrigger      string                      `gorm:"column:risk_trigger" json:"risk_trigger,omitempty"`
	RiskAttemptID    *uuid.UUID                  `gorm:"type:uuid;column:risk_attempt_id" json:"-"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Student) TableName() string { return "student" }

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.RiskStatus == "" {
		s.RiskStatus = RiskStatusPending
	}
	return nil
}

// Category returns the stored category, or "" when the student was never scored.
func (s *Student) Category() RiskCategory {
	if s == nil || s.RiskCategory == nil {
		return ""
	}
	return *s.RiskCategory
}

func (s *Student) Score() float64 {
	if s == nil || s.RiskScore == nil {
		return 0
	}
	return *s.RiskScore
}
