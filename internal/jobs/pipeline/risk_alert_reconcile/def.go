package risk_alert_reconcile

import (
	"context"

	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

type Reconciler interface {
	ReconcileDuplicates(ctx context.Context) (int, error)
}

type Pipeline struct {
	log        *logger.Logger
	reconciler Reconciler
}

func New(baseLog *logger.Logger, reconciler Reconciler) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("job", riskservice.JobTypeReconcileAlerts),
		reconciler: reconciler,
	}
}

func (p *Pipeline) Type() string { return riskservice.JobTypeReconcileAlerts }
