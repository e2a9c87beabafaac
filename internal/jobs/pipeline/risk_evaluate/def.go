package risk_evaluate

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

type Evaluator interface {
	Evaluate(ctx context.Context, studentID uuid.UUID, reason string) (*riskservice.EvaluationResult, error)
}

type Pipeline struct {
	log       *logger.Logger
	evaluator Evaluator
}

func New(baseLog *logger.Logger, evaluator Evaluator) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", riskservice.JobTypeEvaluate),
		evaluator: evaluator,
	}
}

func (p *Pipeline) Type() string { return riskservice.JobTypeEvaluate }
