package risk_alert_reconcile

import (
	"fmt"

	jobrt "github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p.reconciler == nil {
		jc.Fail("deps", fmt.Errorf("missing reconciler"))
		return nil
	}
	n, err := p.reconciler.ReconcileDuplicates(jc.Ctx)
	if err != nil {
		return err
	}
	jc.Succeed(map[string]any{"deactivated": n})
	return nil
}
