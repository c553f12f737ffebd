package domain

import (
	"testing"
	"time"
)

func sampleTasks() []Task {
	base := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id, title, desc string, status Status, prio Priority, age int) Task {
		return Task{
			ID:          id,
			Title:       title,
			Description: desc,
			Status:      status,
			Priority:    prio,
			CreatedAt:   base.Add(time.Duration(age) * time.Hour),
		}
	}
	return []Task{
		mk("1", "Fix login bug", "session cookie lost", StatusInProgress, PriorityHigh, 1),
		mk("2", "Write docs", "user guide", StatusToDo, PriorityLow, 2),
		mk("3", "Bug triage", "weekly rotation", StatusInProgress, PriorityMedium, 3),
		mk("4", "Deploy", "contains BUG workaround", StatusCompleted, PriorityHigh, 4),
		mk("5", "Refactor store", "", StatusInProgress, PriorityLow, 5),
		mk("6", "Plan sprint", "", StatusToDo, PriorityMedium, 6),
		mk("7", "Review PR", "debug helper", StatusInProgress, PriorityHigh, 7),
		mk("8", "Update deps", "", StatusCompleted, PriorityLow, 8),
		mk("9", "Fix crash", "null pointer bug", StatusInProgress, PriorityHigh, 9),
		mk("10", "Backlog grooming", "", StatusToDo, PriorityLow, 10),
	}
}

func TestProjectStatusAndSearchFilter(t *testing.T) {
	got := Project(sampleTasks(), Filters{Status: StatusInProgress, Search: "bug"}, Sort{Column: "created_at", Ascending: true})

	// "debug helper" matches too: the search is a plain substring test.
	want := []string{"1", "3", "7", "9"}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %d: %#v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected task %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestProjectPriorityFilter(t *testing.T) {
	got := Project(sampleTasks(), Filters{Priority: PriorityHigh}, Sort{})
	if len(got) != 4 {
		t.Fatalf("expected 4 high priority tasks, got %d", len(got))
	}
	for _, task := range got {
		if task.Priority != PriorityHigh {
			t.Fatalf("unexpected priority %s for task %s", task.Priority, task.ID)
		}
	}
}

func TestProjectDefaultSortNewestFirst(t *testing.T) {
	got := Project(sampleTasks(), Filters{}, Sort{})
	if len(got) != 10 {
		t.Fatalf("expected full collection, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatalf("expected newest first, task %s is newer than %s", got[i].ID, got[i-1].ID)
		}
	}
}

func TestProjectSortByTitle(t *testing.T) {
	tasks := []Task{
		{ID: "1", Title: "banana"},
		{ID: "2", Title: "Apple"},
		{ID: "3", Title: "cherry"},
	}
	got := Project(tasks, Filters{}, Sort{Column: "title", Ascending: true})
	want := []string{"2", "1", "3"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected task %s, got %s (%s)", i, id, got[i].ID, got[i].Title)
		}
	}
}

func TestProjectSortByDueDateDescending(t *testing.T) {
	base := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "1", DueDate: base.AddDate(0, 0, 1)},
		{ID: "2", DueDate: base.AddDate(0, 0, 3)},
		{ID: "3", DueDate: base.AddDate(0, 0, 2)},
	}
	got := Project(tasks, Filters{}, Sort{Column: "due_date", Ascending: false})
	want := []string{"2", "3", "1"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected task %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	tasks := []Task{{ID: "b", Title: "b"}, {ID: "a", Title: "a"}}
	_ = Project(tasks, Filters{}, Sort{Column: "title", Ascending: true})
	if tasks[0].ID != "b" || tasks[1].ID != "a" {
		t.Fatalf("input slice was reordered: %#v", tasks)
	}
}

func TestBoardPartitionsByStatusAndPosition(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: StatusToDo, Position: 2000},
		{ID: "2", Status: StatusToDo, Position: 1000},
		{ID: "3", Status: StatusInProgress, Position: 1500},
		{ID: "4", Status: StatusToDo, Position: 1500},
	}

	columns := Board(tasks)
	if len(columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(columns))
	}
	if columns[0].Status != StatusToDo || columns[1].Status != StatusInProgress || columns[2].Status != StatusCompleted {
		t.Fatalf("unexpected column order: %#v", columns)
	}

	todo := columns[0].Tasks
	wantOrder := []string{"2", "4", "1"}
	if len(todo) != len(wantOrder) {
		t.Fatalf("expected %d todo tasks, got %d", len(wantOrder), len(todo))
	}
	for i, id := range wantOrder {
		if todo[i].ID != id {
			t.Fatalf("todo position %d: expected %s, got %s", i, id, todo[i].ID)
		}
	}

	if len(columns[2].Tasks) != 0 {
		t.Fatalf("expected empty completed column, got %d tasks", len(columns[2].Tasks))
	}
}
