package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	FetchTask(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	InsertTask(ctx context.Context, ownerID string, task domain.Task) error
	UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	ReplaceTaskTags(ctx context.Context, ownerID, taskID string, tagIDs []string) error
	EnqueueActivity(ctx context.Context, ownerID string, activities []domain.Activity) error
}

// Cache wraps the record service with Redis-backed caching of the full
// task fetch. Every mutation evicts the owner's entry, so reconciliation
// reloads always observe post-write state. Redis outages degrade to direct
// backend reads.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching record-service wrapper using the provided
// Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}

func (c *Cache) FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx, ownerID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, ownerID, tasks)
	return tasks, nil
}

func (c *Cache) FetchTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return c.base.FetchTask(ctx, ownerID, taskID)
}

func (c *Cache) InsertTask(ctx context.Context, ownerID string, task domain.Task) error {
	if err := c.base.InsertTask(ctx, ownerID, task); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error {
	if err := c.base.UpdateTaskFields(ctx, ownerID, taskID, fields); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := c.base.DeleteTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) ReplaceTaskTags(ctx context.Context, ownerID, taskID string, tagIDs []string) error {
	if err := c.base.ReplaceTaskTags(ctx, ownerID, taskID, tagIDs); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) EnqueueActivity(ctx context.Context, ownerID string, activities []domain.Activity) error {
	return c.base.EnqueueActivity(ctx, ownerID, activities)
}

func (c *Cache) loadFromCache(ctx context.Context, ownerID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		return nil, false
	}
	for i := range tasks {
		tasks[i].Owner = ownerID
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, ownerID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Result()
}
