package domain

import "time"

// Statistics aggregates the task collection for the dashboard header.
type Statistics struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	Overdue      int `json:"overdue"`
	HighPriority int `json:"highPriority"`
}

// ComputeStatistics derives the aggregate counters from the full collection.
// It is recomputed wholesale on every store change rather than maintained
// incrementally, so the counters cannot drift from the collection.
func ComputeStatistics(tasks []Task, now time.Time) Statistics {
	stats := Statistics{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == StatusCompleted {
			stats.Completed++
		}
		if t.Overdue(now) {
			stats.Overdue++
		}
		if t.Priority == PriorityHigh {
			stats.HighPriority++
		}
	}
	return stats
}
