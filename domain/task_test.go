package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskValidate(t *testing.T) {
	valid := Task{Title: "Write report", Status: StatusToDo, Priority: PriorityMedium}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		task  Task
		field string
	}{
		{name: "empty_title", task: Task{Title: "  ", Status: StatusToDo, Priority: PriorityLow}, field: "title"},
		{name: "bad_status", task: Task{Title: "t", Status: Status("Archived"), Priority: PriorityLow}, field: "status"},
		{name: "bad_priority", task: Task{Title: "t", Status: StatusToDo, Priority: Priority("Urgent")}, field: "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			ve, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, ve.Field)
			}
			if !IsValidation(err) {
				t.Fatalf("IsValidation should report true")
			}
		})
	}
}

func TestTaskPatchApply(t *testing.T) {
	task := Task{ID: "t1", Title: "old", Status: StatusToDo, Priority: PriorityLow, Position: 1000}
	title := "new"
	status := StatusInProgress
	pos := 1500.0
	due := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	tags := []string{"tag-a", "tag-b"}

	patch := TaskPatch{Title: &title, Status: &status, Position: &pos, DueDate: &due, TagIDs: &tags}
	if patch.Empty() {
		t.Fatalf("patch should not be empty")
	}
	patch.Apply(&task)

	if task.Title != "new" || task.Status != StatusInProgress || task.Position != 1500 {
		t.Fatalf("patch not applied: %#v", task)
	}
	if !task.DueDate.Equal(due) {
		t.Fatalf("due date not applied: %v", task.DueDate)
	}
	if len(task.TagIDs) != 2 {
		t.Fatalf("tags not applied: %#v", task.TagIDs)
	}

	tags[0] = "mutated"
	if task.TagIDs[0] != "tag-a" {
		t.Fatalf("patch must copy the tag slice, got %#v", task.TagIDs)
	}
}

func TestTaskPatchValidate(t *testing.T) {
	empty := ""
	if err := (TaskPatch{Title: &empty}).Validate(); err == nil {
		t.Fatalf("expected error for blank title")
	}
	bad := Status("nope")
	if err := (TaskPatch{Status: &bad}).Validate(); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if err := (TaskPatch{}).Validate(); err != nil {
		t.Fatalf("empty patch should validate: %v", err)
	}
	if !(TaskPatch{}).Empty() {
		t.Fatalf("zero patch should report empty")
	}
}

func TestTaskMarshalIncludesZeroPosition(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Status: StatusToDo, Priority: PriorityLow}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"position\":0") {
		t.Fatalf("expected position field to be present, got %s", payload)
	}
}
