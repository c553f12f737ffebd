// Package storage implements the remote record service over Azure Table
// storage plus a best-effort activity queue. The canonical copy of every
// task lives here; the in-memory store is only a cache of it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard-api/domain"
)

// Storage provides access to the task table, the tag association table and
// the activity queue.
type Storage struct {
	taskTable     *aztables.Client
	taskTagTable  *aztables.Client
	activityQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, taskTagsTable, activityQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, activityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(tasksTable),
		taskTagTable:  svc.NewClient(taskTagsTable),
		activityQueue: aq,
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string  `json:"Title"`
	Description string  `json:"Description"`
	Status      string  `json:"Status"`
	Priority    string  `json:"Priority"`
	DueDate     string  `json:"DueDate"`
	Position    float64 `json:"Position"`
	CategoryID  string  `json:"CategoryId"`
	CreatedAt   string  `json:"CreatedAt"`
	UpdatedAt   string  `json:"UpdatedAt"`
}

// taskTagEntity holds one task-tag association, partitioned by owner so a
// whole board's associations come back in one partition scan.
type taskTagEntity struct {
	aztables.Entity
	TaskID string `json:"TaskId"`
	TagID  string `json:"TagId"`
}

func taskTagRowKey(taskID, tagID string) string {
	return taskID + "_" + tagID
}

func entityToTask(ent taskEntity, owner string) domain.Task {
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		DueDate:     parseEntityTime(ent.DueDate),
		Position:    ent.Position,
		CategoryID:  ent.CategoryID,
		Owner:       owner,
		CreatedAt:   parseEntityTime(ent.CreatedAt),
		UpdatedAt:   parseEntityTime(ent.UpdatedAt),
	}
}

func taskToEntity(task domain.Task, owner string) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: owner, RowKey: task.ID},
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		DueDate:     formatEntityTime(task.DueDate),
		Position:    task.Position,
		CategoryID:  task.CategoryID,
		CreatedAt:   formatEntityTime(task.CreatedAt),
		UpdatedAt:   formatEntityTime(task.UpdatedAt),
	}
}

func parseEntityTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatEntityTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// escapeODataString doubles single quotes so values such as a sub claim of
// "o'brien" cannot break out of the filter literal.
func escapeODataString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// FetchTasks retrieves all tasks for the provided owner, with their tag
// associations joined in.
func (s *Storage) FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeODataString(ownerID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, entityToTask(ent, ownerID))
		}
	}

	tags, err := s.fetchTagAssociations(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].TagIDs = tags[tasks[i].ID]
	}
	return tasks, nil
}

// FetchTask retrieves a single task by id.
func (s *Storage) FetchTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	var raw taskEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return domain.Task{}, err
	}
	task := entityToTask(raw, ownerID)

	tags, err := s.fetchTagAssociations(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	task.TagIDs = tags[taskID]
	return task, nil
}

// InsertTask stores a new task row. Tag associations are written separately
// through ReplaceTaskTags.
func (s *Storage) InsertTask(ctx context.Context, ownerID string, task domain.Task) error {
	payload, err := json.Marshal(taskToEntity(task, ownerID))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTaskFields merges the non-nil patch fields into the stored row. The
// position value is written verbatim; ordering is never re-derived here.
func (s *Storage) UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error {
	ent := map[string]any{
		"PartitionKey": ownerID,
		"RowKey":       taskID,
	}
	if fields.Title != nil {
		ent["Title"] = *fields.Title
	}
	if fields.Description != nil {
		ent["Description"] = *fields.Description
	}
	if fields.Status != nil {
		ent["Status"] = string(*fields.Status)
	}
	if fields.Priority != nil {
		ent["Priority"] = string(*fields.Priority)
	}
	if fields.DueDate != nil {
		ent["DueDate"] = formatEntityTime(*fields.DueDate)
	}
	if fields.Position != nil {
		ent["Position"] = *fields.Position
	}
	if fields.CategoryID != nil {
		ent["CategoryId"] = *fields.CategoryID
	}
	ent["UpdatedAt"] = formatEntityTime(time.Now())

	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrTaskNotFound
		}
		return err
	}
	return nil
}

// DeleteTask removes the task row and its tag associations. Deleting an
// absent task is not an error.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := s.deleteTagAssociations(ctx, ownerID, taskID); err != nil {
		return err
	}
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// ReplaceTaskTags rewrites the task's tag set as two sequential phases:
// delete all existing associations, then insert the new ones. There is no
// transaction across the phases; a failure between them leaves the task
// with no associations and surfaces as a single error.
func (s *Storage) ReplaceTaskTags(ctx context.Context, ownerID, taskID string, tagIDs []string) error {
	if err := s.deleteTagAssociations(ctx, ownerID, taskID); err != nil {
		return fmt.Errorf("clear tag associations: %w", err)
	}
	for _, tagID := range tagIDs {
		ent := taskTagEntity{
			Entity: aztables.Entity{PartitionKey: ownerID, RowKey: taskTagRowKey(taskID, tagID)},
			TaskID: taskID,
			TagID:  tagID,
		}
		payload, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := s.taskTagTable.UpsertEntity(ctx, payload, nil); err != nil {
			return fmt.Errorf("write tag association %s: %w", tagID, err)
		}
	}
	return nil
}

// fetchTagAssociations returns tag ids grouped by task. An empty taskID
// scans the whole owner partition.
func (s *Storage) fetchTagAssociations(ctx context.Context, ownerID, taskID string) (map[string][]string, error) {
	filter := "PartitionKey eq '" + escapeODataString(ownerID) + "'"
	if taskID != "" {
		filter += " and TaskId eq '" + escapeODataString(taskID) + "'"
	}
	pager := s.taskTagTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := make(map[string][]string)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskTagEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			out[ent.TaskID] = append(out[ent.TaskID], ent.TagID)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out, nil
}

func (s *Storage) deleteTagAssociations(ctx context.Context, ownerID, taskID string) error {
	tags, err := s.fetchTagAssociations(ctx, ownerID, taskID)
	if err != nil {
		return err
	}
	for _, tagID := range tags[taskID] {
		_, err := s.taskTagTable.DeleteEntity(ctx, ownerID, taskTagRowKey(taskID, tagID), nil)
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// EnqueueActivity sends activity events to the activity queue. Callers
// treat failures as best-effort; the feed is not part of task state.
func (s *Storage) EnqueueActivity(ctx context.Context, ownerID string, activities []domain.Activity) error {
	for _, activity := range activities {
		env := domain.ActivityEnvelope{UserID: ownerID, Activity: activity}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.activityQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
