package risk_evaluate

import (
	"fmt"

	jobrt "github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	studentID, ok := jc.EntityID()
	if !ok {
		studentID, ok = jc.PayloadUUID("student_id")
	}
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing student id"))
		return nil
	}
	if p.evaluator == nil {
		jc.Fail("deps", fmt.Errorf("missing evaluator"))
		return nil
	}

	res, err := p.evaluator.Evaluate(jc.Ctx, studentID, jc.Reason())
	if err != nil {
		return err
	}
	jc.Succeed(res)
	return nil
}
