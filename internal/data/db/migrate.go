package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain"
)

// OneActiveAlertIndex is the partial unique index backing the
// "at most one active alert per student and type" invariant.
const OneActiveAlertIndex = "idx_risk_alert_one_active"

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// DuplicateResolver deactivates surplus active alerts so the unique index can be built.
type DuplicateResolver func(db *gorm.DB) (int, error)

// EnsureRiskIndexes creates the indexes AutoMigrate cannot express. Historical
// duplicate active alerts are resolved first, otherwise index creation fails.
func EnsureRiskIndexes(db *gorm.DB, resolve DuplicateResolver) error {
	if resolve != nil {
		if _, err := resolve(db); err != nil {
			return fmt.Errorf("reconcile duplicate alerts: %w", err)
		}
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ` + OneActiveAlertIndex + `
		ON risk_alert(student_id, alert_type)
		WHERE active = true;
	`).Error; err != nil {
		return fmt.Errorf("create %s: %w", OneActiveAlertIndex, err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_student_risk_status_updated ON student(risk_status, risk_updated_at);`).Error; err != nil {
		return fmt.Errorf("create idx_student_risk_status_updated: %w", err)
	}
	return nil
}
