package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

/*
Context is the execution handle a handler receives for a single job run.
It wraps:
	- The run's context.Context (cancelled only when the runner is force-stopped),
	- The job_run audit row,
	- The only sanctioned ways to terminate execution (Succeed / Fail).
Handlers never touch job_run directly.
*/
type Context struct {
	Ctx      context.Context
	Job      *types.JobRun
	Repo     repos.JobRunRepo
	Log      *logger.Logger
	payload  map[string]any
	finished bool
}

func NewContext(ctx context.Context, job *types.JobRun, repo repos.JobRunRepo, log *logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Context{
		Ctx:  ctx,
		Job:  job,
		Repo: repo,
		Log:  log,
	}
	_ = c.decodePayload()
	return c
}

/*
decodePayload parses Job.Payload into a map.
On unmarshal error the payload is left empty and the error returned, so
handlers decide whether a malformed payload should fail the run.
*/
func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// EntityID returns the job's entity, if it has one.
func (c *Context) EntityID() (uuid.UUID, bool) {
	if c.Job == nil || c.Job.EntityID == nil || *c.Job.EntityID == uuid.Nil {
		return uuid.Nil, false
	}
	return *c.Job.EntityID, true
}

func (c *Context) Reason() string {
	if c.Job == nil {
		return ""
	}
	return c.Job.Reason
}

func (c *Context) Finished() bool { return c != nil && c.finished }

/*
Fail marks the run as terminally failed and records the error.
Failures are logged here, so every failed background task shows up in one
place regardless of which handler produced it. There is no automatic retry.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.finished {
		return
	}
	c.finished = true
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Job != nil {
		c.Log.Error("Background task failed",
			"job_id", c.Job.ID,
			"job_type", c.Job.JobType,
			"entity_id", c.Job.EntityID,
			"reason", c.Job.Reason,
			"stage", stage,
			"error", msg,
		)
		c.Job.Status = types.JobStatusFailed
		c.Job.Error = msg
		c.Job.FinishedAt = &now
	}
	c.persist(map[string]interface{}{
		"status":      types.JobStatusFailed,
		"error":       msg,
		"finished_at": now,
	})
}

// Succeed marks the run as succeeded and stores result as JSON.
func (c *Context) Succeed(result any) {
	if c == nil || c.finished {
		return
	}
	c.finished = true
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err == nil {
			res = datatypes.JSON(b)
		}
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusSucceeded
		c.Job.Result = res
		c.Job.FinishedAt = &now
	}
	c.persist(map[string]interface{}{
		"status":      types.JobStatusSucceeded,
		"error":       "",
		"result":      res,
		"finished_at": now,
	})
}

func (c *Context) persist(updates map[string]interface{}) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.Repo.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, c.Job.ID, updates); err != nil {
		c.Log.Warn("Failed to persist job_run status", "job_id", c.Job.ID, "error", err)
	}
}
