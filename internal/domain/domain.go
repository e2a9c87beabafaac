package domain

import (
	"github.com/yungbote/riskwatch-backend/internal/domain/jobs"
	"github.com/yungbote/riskwatch-backend/internal/domain/risk"
)

type (
	Student      = risk.Student
	RiskAlert    = risk.RiskAlert
	Mentor       = risk.Mentor
	RiskStatus   = risk.RiskStatus
	RiskCategory = risk.RiskCategory
	JobRun       = jobs.JobRun
)

const (
	JobStatusQueued    = jobs.JobStatusQueued
	JobStatusRunning   = jobs.JobStatusRunning
	JobStatusSucceeded = jobs.JobStatusSucceeded
	JobStatusFailed    = jobs.JobStatusFailed
)

const (
	RiskStatusPending    = risk.RiskStatusPending
	RiskStatusProcessing = risk.RiskStatusProcessing
	RiskStatusCalculated = risk.RiskStatusCalculated
	RiskStatusFailed     = risk.RiskStatusFailed

	RiskCategoryLow    = risk.RiskCategoryLow
	RiskCategoryMedium = risk.RiskCategoryMedium
	RiskCategoryHigh   = risk.RiskCategoryHigh

	AlertTypeRisk = risk.AlertTypeRisk
)

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&risk.Mentor{},
		&risk.Student{},
		&risk.RiskAlert{},
		&jobs.JobRun{},
	}
}
