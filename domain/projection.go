package domain

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filters narrows the projected task list. Zero values match everything.
type Filters struct {
	Status   Status
	Priority Priority
	Search   string
}

// Sort selects the list-view ordering. It does not affect board ordering,
// which always follows ascending position within each column.
type Sort struct {
	Column    string
	Ascending bool
}

// DefaultSort matches the initial dashboard view: newest first.
func DefaultSort() Sort {
	return Sort{Column: "created_at", Ascending: false}
}

// Project returns the filtered, sorted list view of the collection. The
// input slice is not modified.
func Project(tasks []Task, f Filters, s Sort) []Task {
	out := make([]Task, 0, len(tasks))
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, t := range tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}

	if s.Column == "" {
		s = DefaultSort()
	}
	coll := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		cmp := compareByColumn(coll, out[i], out[j], s.Column)
		if s.Ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return out
}

// compareByColumn orders string columns through the collator and date or
// numeric columns by value. Unknown columns fall back to creation time.
func compareByColumn(coll *collate.Collator, a, b Task, column string) int {
	switch column {
	case "due_date":
		return a.DueDate.Compare(b.DueDate)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "position":
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		}
		return 0
	case "title":
		return coll.CompareString(a.Title, b.Title)
	case "description":
		return coll.CompareString(a.Description, b.Description)
	case "status":
		return coll.CompareString(string(a.Status), string(b.Status))
	case "priority":
		return coll.CompareString(string(a.Priority), string(b.Priority))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// BoardColumn is one rendered column of the kanban board.
type BoardColumn struct {
	Status Status `json:"status"`
	Tasks  []Task `json:"tasks"`
}

// Board partitions the collection into the three fixed columns, each
// ordered by ascending position. Board ordering is independent of the
// active list-view sort.
func Board(tasks []Task) []BoardColumn {
	columns := make([]BoardColumn, len(Columns))
	for i, status := range Columns {
		columns[i] = BoardColumn{Status: status, Tasks: []Task{}}
	}
	for _, t := range tasks {
		for i := range columns {
			if columns[i].Status == t.Status {
				columns[i].Tasks = append(columns[i].Tasks, t)
				break
			}
		}
	}
	for i := range columns {
		col := columns[i].Tasks
		sort.SliceStable(col, func(a, b int) bool { return col[a].Position < col[b].Position })
	}
	return columns
}
