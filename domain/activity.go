package domain

import "github.com/bytedance/sonic"

// Activity event types emitted to the activity queue.
const (
	ActivityTaskCreated = "task-created"
	ActivityTaskUpdated = "task-updated"
	ActivityTaskMoved   = "task-moved"
	ActivityTaskDeleted = "task-deleted"
)

// Activity records a single mutation for the best-effort activity feed.
type Activity struct {
	ID        string                 `json:"id"`
	TaskID    string                 `json:"taskId"`
	Type      string                 `json:"type"`
	Detail    sonic.NoCopyRawMessage `json:"detail,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ActivityEnvelope wraps an activity with the user who performed it.
type ActivityEnvelope struct {
	UserID   string   `json:"userId"`
	Activity Activity `json:"activity"`
}
