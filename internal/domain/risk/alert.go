package risk

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AlertTypeRisk       = "RISK"
	AlertTypeAttendance = "ATTENDANCE"
)

// RiskAlert is the notification derived from a student's risk level.
// At most one RISK alert per student is active at a time; inactive rows are kept as history.
type RiskAlert struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID       uuid.UUID    `gorm:"type:uuid;column:student_id;not null;index" json:"student_id"`
	StudentName     string       `gorm:"column:student_name" json:"student_name,omitempty"`
	MentorID        *uuid.UUID   `gorm:"type:uuid;column:mentor_id;index" json:"mentor_id,omitempty"`
	AlertType       string       `gorm:"column:alert_type;not null;default:RISK;index" json:"alert_type"`
	RiskLevel       RiskCategory `gorm:"column:risk_level;type:varchar(16);not null" json:"risk_level"`
	RiskScore       float64      `gorm:"column:risk_score" json:"risk_score"`
	Message         string       `gorm:"column:message" json:"message"`
	Active          bool         `gorm:"column:active;not null;index" json:"active"`
	LastEvaluatedAt time.Time    `gorm:"column:last_evaluated_at;not null" json:"last_evaluated_at"`
	LastUpdatedAt   time.Time    `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
	ResolvedAt      *time.Time   `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (RiskAlert) TableName() string { return "risk_alert" }

func (a *RiskAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AlertType == "" {
		a.AlertType = AlertTypeRisk
	}
	return nil
}
