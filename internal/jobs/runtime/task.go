package runtime

import "github.com/google/uuid"

// Task is a unit of background work submitted to the runner.
type Task struct {
	JobType    string
	EntityType string
	EntityID   *uuid.UUID
	// Reason is an audit tag carried through to the handler.
	Reason  string
	Payload map[string]any
}
