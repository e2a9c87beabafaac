package risk

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const supersededMessage = "Superseded by a newer alert"

// Reconciler repairs students holding more than one active RISK alert, left
// over from writes that predate the one-active index.
type Reconciler struct {
	log    *logger.Logger
	alerts repos.AlertRepo
	now    func() time.Time
}

func NewReconciler(baseLog *logger.Logger, alerts repos.AlertRepo) *Reconciler {
	return &Reconciler{
		log:    baseLog.With("service", "AlertReconciler"),
		alerts: alerts,
		now:    time.Now,
	}
}

// ReconcileDuplicates keeps the most recently updated active alert per student
// and deactivates the rest. It returns the number of alerts deactivated.
func (r *Reconciler) ReconcileDuplicates(ctx context.Context) (int, error) {
	return r.reconcile(dbctx.Context{Ctx: ctx})
}

// ResolveDuplicates runs the reconciliation on db directly. It has the shape
// the migration step expects before the unique index is built.
func (r *Reconciler) ResolveDuplicates(db *gorm.DB) (int, error) {
	return r.reconcile(dbctx.Context{Ctx: context.Background(), Tx: db})
}

func (r *Reconciler) reconcile(dbc dbctx.Context) (int, error) {
	groups, err := r.alerts.ListDuplicateActive(dbc, types.AlertTypeRisk)
	if err != nil {
		return 0, fmt.Errorf("list duplicate active alerts: %w", err)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	now := r.now()
	var set repos.AlertWriteSet
	for studentID, rows := range groups {
		keep := newestAlert(rows)
		for _, a := range rows {
			if a.ID == keep.ID {
				continue
			}
			set.Deactivations = append(set.Deactivations, repos.AlertUpdate{
				ID: a.ID,
				Updates: map[string]interface{}{
					"active":      false,
					"message":     supersededMessage,
					"resolved_at": now,
				},
			})
		}
		r.log.Warn("Duplicate active alerts found",
			"student_id", studentID,
			"count", len(rows),
			"kept_alert_id", keep.ID,
		)
	}

	res, err := r.alerts.BulkWrite(dbc, set)
	if err != nil {
		return 0, fmt.Errorf("deactivate duplicate alerts: %w", err)
	}
	r.log.Info("Duplicate alerts reconciled", "students", len(groups), "deactivated", res.Deactivated)
	return int(res.Deactivated), nil
}

func newestAlert(rows []*types.RiskAlert) *types.RiskAlert {
	var best *types.RiskAlert
	for _, a := range rows {
		if best == nil || newer(a, best) {
			best = a
		}
	}
	return best
}

func newer(a, b *types.RiskAlert) bool {
	if !a.LastUpdatedAt.Equal(b.LastUpdatedAt) {
		return a.LastUpdatedAt.After(b.LastUpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}
