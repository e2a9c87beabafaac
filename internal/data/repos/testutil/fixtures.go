package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
)

func SeedStudent(tb testing.TB, ctx context.Context, tx *gorm.DB, code string, mutate ...func(*types.Student)) *types.Student {
	tb.Helper()
	s := &types.Student{
		ID:                   uuid.New(),
		StudentCode:          code,
		Name:                 "Student " + code,
		Course:               "General",
		AttendancePercentage: PtrFloat(90),
		CGPA:                 PtrFloat(8.2),
		FeeDelayDays:         PtrFloat(0),
	}
	for _, m := range mutate {
		m(s)
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return s
}

func SeedMentor(tb testing.TB, ctx context.Context, tx *gorm.DB, code string) *types.Mentor {
	tb.Helper()
	m := &types.Mentor{
		ID:         uuid.New(),
		MentorCode: code,
		Name:       "Mentor " + code,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed mentor: %v", err)
	}
	return m
}

// SeedActiveAlert bypasses the unique index guard only when the index is absent;
// with the index in place a second active alert for the same student fails.
func SeedActiveAlert(tb testing.TB, ctx context.Context, tx *gorm.DB, studentID uuid.UUID, level types.RiskCategory, at time.Time) *types.RiskAlert {
	tb.Helper()
	a := &types.RiskAlert{
		ID:              uuid.New(),
		StudentID:       studentID,
		AlertType:       types.AlertTypeRisk,
		RiskLevel:       level,
		RiskScore:       60,
		Message:         "Risk is " + string(level),
		Active:          true,
		LastEvaluatedAt: at,
		LastUpdatedAt:   at,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed alert: %v", err)
	}
	return a
}

func PtrFloat(v float64) *float64 { return &v }

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
