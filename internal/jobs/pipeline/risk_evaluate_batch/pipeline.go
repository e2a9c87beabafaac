package risk_evaluate_batch

import (
	"fmt"

	jobrt "github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
	riskservice "github.com/yungbote/riskwatch-backend/internal/services/risk"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p.batch == nil {
		jc.Fail("deps", fmt.Errorf("missing batch evaluator"))
		return nil
	}
	reason := jc.Reason()
	if reason == "" {
		reason = riskservice.ReasonScheduled
	}

	var (
		res riskservice.BatchResult
		err error
	)
	if p.pendingOnly {
		res, err = p.batch.EvaluatePending(jc.Ctx, reason)
	} else {
		res, err = p.batch.EvaluateAll(jc.Ctx, reason)
	}
	if err != nil {
		return err
	}
	p.log.Info("Batch job complete",
		"job_id", jc.Job.ID,
		"total", res.Total,
		"processed", res.Processed,
		"failed", res.Failed,
	)
	jc.Succeed(res)
	return nil
}
