package domain

import (
	"strings"
	"time"
)

// Status identifies the board column a task belongs to.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Columns lists the board columns in rendering order.
var Columns = []Status{StatusToDo, StatusInProgress, StatusCompleted}

// Valid reports whether the status is one of the known columns.
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority is the user-assigned urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a single board item. Position orders tasks within their
// owner+status partition; only relative order matters, not magnitude.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	DueDate     time.Time `json:"due_date"`
	Position    float64   `json:"position"`
	TagIDs      []string  `json:"tag_ids,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	Owner       string    `json:"-"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Overdue reports whether the task is past due and not yet completed.
func (t Task) Overdue(now time.Time) bool {
	return t.Status != StatusCompleted && !t.DueDate.IsZero() && t.DueDate.Before(now)
}

// Validate checks the fields a task must carry before it is sent anywhere.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ValidationError{Field: "title", Reason: "title is required"}
	}
	if !t.Status.Valid() {
		return ValidationError{Field: "status", Reason: "unknown status"}
	}
	if !t.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	return nil
}

// TaskPatch carries a partial update for a task. Nil fields are untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Position    *float64   `json:"position,omitempty"`
	CategoryID  *string    `json:"category_id,omitempty"`
	TagIDs      *[]string  `json:"tag_ids,omitempty"`
}

// Empty reports whether the patch carries no changes.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.Position == nil &&
		p.CategoryID == nil && p.TagIDs == nil
}

// Validate rejects patches that would put a task into an illegal state.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError{Field: "title", Reason: "title is required"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return ValidationError{Field: "status", Reason: "unknown status"}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	return nil
}

// Apply merges the patch into the task.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.TagIDs != nil {
		t.TagIDs = append([]string(nil), (*p.TagIDs)...)
	}
}
