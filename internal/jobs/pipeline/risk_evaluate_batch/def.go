package risk_evaluate_batch

import (
	"context"

	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

type BatchEvaluator interface {
	EvaluateAll(ctx context.Context, reason string) (riskservice.BatchResult, error)
	EvaluatePending(ctx context.Context, reason string) (riskservice.BatchResult, error)
}

// Pipeline runs a full recompute, or with pendingOnly only the students that
// were never scored or whose last evaluation failed.
type Pipeline struct {
	log         *logger.Logger
	batch       BatchEvaluator
	pendingOnly bool
}

func NewAll(baseLog *logger.Logger, batch BatchEvaluator) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", riskservice.JobTypeEvaluateAll),
		batch: batch,
	}
}

func NewPending(baseLog *logger.Logger, batch BatchEvaluator) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", riskservice.JobTypeEvaluatePending),
		batch:       batch,
		pendingOnly: true,
	}
}

func (p *Pipeline) Type() string {
	if p.pendingOnly {
		return riskservice.JobTypeEvaluatePending
	}
	return riskservice.JobTypeEvaluateAll
}
