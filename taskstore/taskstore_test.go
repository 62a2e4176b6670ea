package taskstore

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestDraftNormalize(t *testing.T) {
	d, err := Draft{Title: "  Learn MCP ", Description: " Study "}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.Title != "Learn MCP" || d.Description != "Study" {
		t.Fatalf("text not trimmed: %+v", d)
	}
	if d.Status != StatusPending || d.Priority != PriorityMedium {
		t.Fatalf("defaults not applied: %+v", d)
	}

	bad := []Draft{
		{Title: "  ", Description: "x"},
		{Title: "x", Description: ""},
		{Title: "x", Description: "y", Status: "done"},
		{Title: "x", Description: "y", Priority: "urgent"},
	}
	for _, d := range bad {
		if _, err := d.Normalize(); !errors.Is(err, ErrValidation) {
			t.Errorf("Normalize(%+v) = %v, want ErrValidation", d, err)
		}
	}
}

func TestUpdateApply(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	task := Task{ID: "a", Title: "t", Description: "d", Status: StatusPending, Priority: PriorityLow, CreatedAt: created, UpdatedAt: created}

	later := created.Add(time.Hour)
	err := Update{Title: ptr(" new "), Status: ptr(StatusCompleted)}.Apply(&task, later)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if task.Title != "new" || task.Status != StatusCompleted || task.Priority != PriorityLow {
		t.Fatalf("unexpected task: %+v", task)
	}
	if !task.UpdatedAt.Equal(later) || !task.CreatedAt.Equal(created) {
		t.Fatalf("timestamps wrong: %+v", task)
	}

	before := task
	if err := (Update{Title: ptr("ok"), Priority: ptr(Priority("bogus"))}).Apply(&task, later.Add(time.Hour)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if task != before {
		t.Fatalf("failed update modified task: %+v", task)
	}
}

func TestComputeStatistics(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tasks []*Task
	statuses := []Status{StatusCompleted, StatusPending, StatusPending, StatusInProgress, StatusPending, StatusCompleted}
	for i, s := range statuses {
		tasks = append(tasks, &Task{
			ID:        string(rune('a' + i)),
			Status:    s,
			Priority:  PriorityMedium,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	SortNewestFirst(tasks)

	st := ComputeStatistics(tasks)
	if st.Total != 6 {
		t.Fatalf("total = %d", st.Total)
	}
	if st.ByStatus[StatusPending] != 3 || st.ByStatus[StatusCompleted] != 2 || st.ByStatus[StatusInProgress] != 1 {
		t.Fatalf("by_status = %v", st.ByStatus)
	}
	if st.ByPriority[PriorityHigh] != 0 || st.ByPriority[PriorityMedium] != 6 {
		t.Fatalf("by_priority = %v", st.ByPriority)
	}
	if st.CompletionRate != 33.33 {
		t.Fatalf("completion_rate = %v", st.CompletionRate)
	}
	want := []string{"f", "e", "d", "c", "b"}
	if len(st.RecentTaskIDs) != len(want) {
		t.Fatalf("recent = %v", st.RecentTaskIDs)
	}
	for i := range want {
		if st.RecentTaskIDs[i] != want[i] {
			t.Fatalf("recent = %v, want %v", st.RecentTaskIDs, want)
		}
	}
}

func TestComputeStatisticsEmpty(t *testing.T) {
	st := ComputeStatistics(nil)
	if st.Total != 0 || st.CompletionRate != 0 || st.RecentTaskIDs == nil {
		t.Fatalf("unexpected empty stats: %+v", st)
	}
	if _, ok := st.ByStatus[StatusCompleted]; !ok {
		t.Fatalf("status buckets should be present even when empty")
	}
}

func TestSortNewestFirstTies(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []*Task{{ID: "1", CreatedAt: at}, {ID: "2", CreatedAt: at}, {ID: "3", CreatedAt: at.Add(-time.Second)}}
	SortNewestFirst(tasks)
	if tasks[0].ID != "2" || tasks[1].ID != "1" || tasks[2].ID != "3" {
		t.Fatalf("order = %s %s %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestFilter(t *testing.T) {
	if err := (Filter{Status: "nope"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	task := &Task{Status: StatusPending, Priority: PriorityHigh}
	if !(Filter{}).Matches(task) || !(Filter{Priority: PriorityHigh}).Matches(task) || (Filter{Status: StatusCompleted}).Matches(task) {
		t.Fatal("filter matching is wrong")
	}
}
