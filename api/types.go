package api

import (
	"context"

	"taskboard-api/domain"
)

// RecordService abstracts the remote record store for handlers. It is the
// only path to durable task state; everything else is cache.
type RecordService interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	FetchTask(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	InsertTask(ctx context.Context, ownerID string, task domain.Task) error
	UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	ReplaceTaskTags(ctx context.Context, ownerID, taskID string, tagIDs []string) error
	EnqueueActivity(ctx context.Context, ownerID string, activities []domain.Activity) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents a retried drag gesture from being applied twice.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key so the gesture may be retried.
	Remove(ctx context.Context, userID, key string) error
}
