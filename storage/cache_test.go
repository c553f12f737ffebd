package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type stubBackend struct {
	fetchTasksFn func(ctx context.Context, ownerID string) ([]domain.Task, error)
	insertFn     func(ctx context.Context, ownerID string, task domain.Task) error
	updateFn     func(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error
	deleteFn     func(ctx context.Context, ownerID, taskID string) error
}

func (s *stubBackend) FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if s.fetchTasksFn == nil {
		return nil, errors.New("unexpected FetchTasks call")
	}
	return s.fetchTasksFn(ctx, ownerID)
}

func (s *stubBackend) FetchTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected FetchTask call")
}

func (s *stubBackend) InsertTask(ctx context.Context, ownerID string, task domain.Task) error {
	if s.insertFn == nil {
		return errors.New("unexpected InsertTask call")
	}
	return s.insertFn(ctx, ownerID, task)
}

func (s *stubBackend) UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error {
	if s.updateFn == nil {
		return errors.New("unexpected UpdateTaskFields call")
	}
	return s.updateFn(ctx, ownerID, taskID, fields)
}

func (s *stubBackend) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteFn(ctx, ownerID, taskID)
}

func (s *stubBackend) ReplaceTaskTags(ctx context.Context, ownerID, taskID string, tagIDs []string) error {
	return errors.New("unexpected ReplaceTaskTags call")
}

func (s *stubBackend) EnqueueActivity(ctx context.Context, ownerID string, activities []domain.Activity) error {
	return errors.New("unexpected EnqueueActivity call")
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, time.Minute), mr
}

func TestCacheFetchTasksMissThenHit(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-1"
	expected := []domain.Task{{ID: "t1", Title: "Write code", Status: domain.StatusToDo, Owner: ownerID}}

	var calls int
	cache, mr := newTestCache(t, &stubBackend{
		fetchTasksFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			calls++
			if owner != ownerID {
				t.Fatalf("unexpected owner id: %s", owner)
			}
			return append([]domain.Task(nil), expected...), nil
		},
	})

	tasks, err := cache.FetchTasks(ctx, ownerID)
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(tasksCacheKey(ownerID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.FetchTasks(ctx, ownerID)
	if err != nil {
		t.Fatalf("fetch cached tasks: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCacheEvictsOnMutation(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-1"

	var fetches int
	cache, mr := newTestCache(t, &stubBackend{
		fetchTasksFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			fetches++
			return []domain.Task{{ID: "t1", Title: "a", Status: domain.StatusToDo, Owner: owner}}, nil
		},
		updateFn: func(ctx context.Context, owner, taskID string, fields domain.TaskPatch) error {
			return nil
		},
	})

	if _, err := cache.FetchTasks(ctx, ownerID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if !mr.Exists(tasksCacheKey(ownerID)) {
		t.Fatalf("expected cache entry after fetch")
	}

	pos := 1500.0
	if err := cache.UpdateTaskFields(ctx, ownerID, "t1", domain.TaskPatch{Position: &pos}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists(tasksCacheKey(ownerID)) {
		t.Fatalf("expected cache entry to be evicted after mutation")
	}

	if _, err := cache.FetchTasks(ctx, ownerID); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("expected backend refetch after eviction, fetches=%d", fetches)
	}
}

func TestCacheMutationFailureDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-1"

	cache, mr := newTestCache(t, &stubBackend{
		fetchTasksFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", Owner: owner}}, nil
		},
		deleteFn: func(ctx context.Context, owner, taskID string) error {
			return errors.New("backend down")
		},
	})

	if _, err := cache.FetchTasks(ctx, ownerID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := cache.DeleteTask(ctx, ownerID, "t1"); err == nil {
		t.Fatalf("expected delete to fail")
	}
	if !mr.Exists(tasksCacheKey(ownerID)) {
		t.Fatalf("failed mutation must not evict the cache")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-1"

	var calls int
	cache, mr := newTestCache(t, &stubBackend{
		fetchTasksFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Owner: owner}}, nil
		},
	})

	if err := mr.Set(tasksCacheKey(ownerID), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, err := cache.FetchTasks(ctx, ownerID)
	if err != nil {
		t.Fatalf("fetch with corrupt cache: %v", err)
	}
	if len(tasks) != 1 || calls != 1 {
		t.Fatalf("expected backend fallback, tasks=%d calls=%d", len(tasks), calls)
	}
}

func TestCacheRedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-1"

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	var calls int
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Owner: owner}}, nil
		},
	}, client, time.Minute)

	tasks, err := cache.FetchTasks(ctx, ownerID)
	if err != nil {
		t.Fatalf("fetch with redis down: %v", err)
	}
	if len(tasks) != 1 || calls != 1 {
		t.Fatalf("expected direct backend read, tasks=%d calls=%d", len(tasks), calls)
	}
}
