package scoring

import (
	"math"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
)

// Features is the numeric feature vector sent to the scoring service.
type Features struct {
	AttendancePercentage    float64 `json:"attendancePercentage"`
	CGPA                    float64 `json:"cgpa"`
	FeeDelayDays            int     `json:"feeDelayDays"`
	ClassParticipationScore float64 `json:"classParticipationScore"`
	AssignmentsCompleted    int     `json:"assignmentsCompleted"`
}

// DefaultAssignmentsCompleted stands in for a missing assignment completion rate.
const DefaultAssignmentsCompleted = 85

// FeaturesFromStudent substitutes 0 for missing inputs, except assignment completion.
// Fee delay and assignment counts are whole numbers on the wire and are rounded.
func FeaturesFromStudent(s *types.Student) Features {
	f := Features{AssignmentsCompleted: DefaultAssignmentsCompleted}
	if s == nil {
		return f
	}
	f.AttendancePercentage = deref(s.AttendancePercentage, 0)
	f.CGPA = deref(s.CGPA, 0)
	f.FeeDelayDays = int(math.Round(deref(s.FeeDelayDays, 0)))
	f.ClassParticipationScore = deref(s.ClassParticipationScore, 0)
	f.AssignmentsCompleted = int(math.Round(deref(s.AssignmentsCompleted, DefaultAssignmentsCompleted)))
	return f
}

type Result struct {
	Score        float64
	Category     types.RiskCategory
	Reasons      []string
	ModelID      string
	ModelVersion string
}

// predictResponse keeps reasons as pointers so a null entry is rejected
// instead of decoding to "".
type predictResponse struct {
	Score    *float64  `json:"score"`
	Category *string   `json:"category"`
	Reasons  []*string `json:"reasons"`
	Model    *struct {
		ID      string `json:"id"`
		Version string `json:"version"`
	} `json:"model,omitempty"`
}

func deref(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
