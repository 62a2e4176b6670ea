// Package storetest holds the conformance suite every taskstore.Store backend
// is expected to pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/syarbeats/mcp-playground/taskstore"
)

// StoreFactory returns a fresh, empty store for a single subtest.
type StoreFactory func(t *testing.T) taskstore.Store

// RunStoreTests runs the complete store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		testCreateAndGet(t, factory)
	})
	t.Run("CreateValidation", func(t *testing.T) {
		testCreateValidation(t, factory)
	})
	t.Run("GetMissing", func(t *testing.T) {
		testGetMissing(t, factory)
	})
	t.Run("ListNewestFirstAndFilter", func(t *testing.T) {
		testListNewestFirstAndFilter(t, factory)
	})
	t.Run("Update", func(t *testing.T) {
		testUpdate(t, factory)
	})
	t.Run("UpdateValidationLeavesTaskUnchanged", func(t *testing.T) {
		testUpdateValidation(t, factory)
	})
	t.Run("Delete", func(t *testing.T) {
		testDelete(t, factory)
	})
	t.Run("Statistics", func(t *testing.T) {
		testStatistics(t, factory)
	})
	t.Run("ConcurrentCreates", func(t *testing.T) {
		testConcurrentCreates(t, factory)
	})
}

func newStore(t *testing.T, factory StoreFactory) taskstore.Store {
	t.Helper()
	s := factory(t)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func mustCreate(t *testing.T, s taskstore.Store, d taskstore.Draft) *taskstore.Task {
	t.Helper()
	task, err := s.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("Create(%q): %v", d.Title, err)
	}
	return task
}

func testCreateAndGet(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	created := mustCreate(t, s, taskstore.Draft{
		Title:       " Learn MCP ",
		Description: "Study the protocol",
		Status:      taskstore.StatusPending,
		Priority:    taskstore.PriorityHigh,
	})
	if created.ID == "" {
		t.Fatal("expected an id")
	}
	if created.Title != "Learn MCP" {
		t.Errorf("title not trimmed: %q", created.Title)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("timestamps not initialised: %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	if created.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at not UTC: %v", created.CreatedAt.Location())
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != created.Title || got.Description != created.Description ||
		got.Status != created.Status || got.Priority != created.Priority ||
		!got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("Get returned %+v, want %+v", got, created)
	}

	defaults := mustCreate(t, s, taskstore.Draft{Title: "t", Description: "d"})
	if defaults.Status != taskstore.StatusPending || defaults.Priority != taskstore.PriorityMedium {
		t.Errorf("defaults not applied: %+v", defaults)
	}
}

func testCreateValidation(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	for _, d := range []taskstore.Draft{
		{Title: "", Description: "d"},
		{Title: "t", Description: "   "},
		{Title: "t", Description: "d", Status: "archived"},
		{Title: "t", Description: "d", Priority: "critical"},
	} {
		if _, err := s.Create(ctx, d); !errors.Is(err, taskstore.ErrValidation) {
			t.Errorf("Create(%+v) = %v, want ErrValidation", d, err)
		}
	}

	tasks, err := s.List(ctx, taskstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("invalid drafts were stored: %d tasks", len(tasks))
	}
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	if _, err := s.Get(context.Background(), "does-not-exist"); !errors.Is(err, taskstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListNewestFirstAndFilter(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	a := mustCreate(t, s, taskstore.Draft{Title: "a", Description: "d", Priority: taskstore.PriorityLow})
	b := mustCreate(t, s, taskstore.Draft{Title: "b", Description: "d", Status: taskstore.StatusCompleted})
	c := mustCreate(t, s, taskstore.Draft{Title: "c", Description: "d", Priority: taskstore.PriorityLow})

	all, err := s.List(ctx, taskstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != c.ID || all[1].ID != b.ID || all[2].ID != a.ID {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	low, err := s.List(ctx, taskstore.Filter{Priority: taskstore.PriorityLow})
	if err != nil {
		t.Fatalf("List(low): %v", err)
	}
	if len(low) != 2 || low[0].ID != c.ID || low[1].ID != a.ID {
		t.Fatalf("priority filter returned %v", ids(low))
	}

	done, err := s.List(ctx, taskstore.Filter{Status: taskstore.StatusCompleted})
	if err != nil {
		t.Fatalf("List(completed): %v", err)
	}
	if len(done) != 1 || done[0].ID != b.ID {
		t.Fatalf("status filter returned %v", ids(done))
	}

	if _, err := s.List(ctx, taskstore.Filter{Status: "bogus"}); !errors.Is(err, taskstore.ErrValidation) {
		t.Fatalf("expected ErrValidation for bogus filter, got %v", err)
	}
}

func testUpdate(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	task := mustCreate(t, s, taskstore.Draft{Title: "t", Description: "d"})
	status := taskstore.StatusInProgress
	title := "  renamed "

	updated, err := s.Update(ctx, task.ID, taskstore.Update{Status: &status, Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != status || updated.Title != "renamed" || updated.Description != "d" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("updated_at not advanced: %v <= %v", updated.UpdatedAt, updated.CreatedAt)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status || got.Title != "renamed" {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := s.Update(ctx, "missing", taskstore.Update{Status: &status}); !errors.Is(err, taskstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testUpdateValidation(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	task := mustCreate(t, s, taskstore.Draft{Title: "t", Description: "d"})
	blank := "   "
	bad := taskstore.Priority("urgent")

	for _, u := range []taskstore.Update{{Title: &blank}, {Description: &blank}, {Priority: &bad}} {
		if _, err := s.Update(ctx, task.ID, u); !errors.Is(err, taskstore.ErrValidation) {
			t.Errorf("Update(%+v) = %v, want ErrValidation", u, err)
		}
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "t" || got.Description != "d" || got.Priority != taskstore.PriorityMedium {
		t.Fatalf("failed updates changed the task: %+v", got)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	task := mustCreate(t, s, taskstore.Draft{Title: "t", Description: "d"})
	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, task.ID); !errors.Is(err, taskstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, task.ID); !errors.Is(err, taskstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testStatistics(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	if err := taskstore.Seed(ctx, s, len(taskstore.SampleDrafts())); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	last := mustCreate(t, s, taskstore.Draft{Title: "extra", Description: "d", Status: taskstore.StatusCompleted})

	st, err := taskstore.Stats(ctx, s)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 6 {
		t.Fatalf("total = %d, want 6", st.Total)
	}
	if st.ByStatus[taskstore.StatusCompleted] != 2 || st.ByStatus[taskstore.StatusPending] != 3 || st.ByStatus[taskstore.StatusInProgress] != 1 {
		t.Fatalf("by_status = %v", st.ByStatus)
	}
	if st.ByPriority[taskstore.PriorityHigh] != 2 || st.ByPriority[taskstore.PriorityMedium] != 3 || st.ByPriority[taskstore.PriorityLow] != 1 {
		t.Fatalf("by_priority = %v", st.ByPriority)
	}
	if st.CompletionRate != 33.33 {
		t.Fatalf("completion_rate = %v, want 33.33", st.CompletionRate)
	}
	if len(st.RecentTaskIDs) != taskstore.RecentLimit || st.RecentTaskIDs[0] != last.ID {
		t.Fatalf("recent_task_ids = %v", st.RecentTaskIDs)
	}
}

func testConcurrentCreates(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, taskstore.Draft{Title: "t", Description: "d"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Create: %v", err)
		}
	}

	tasks, err := s.List(ctx, taskstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	seen := make(map[string]bool, n)
	for _, task := range tasks {
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d tasks, want %d", len(seen), n)
	}
}

func ids(tasks []*taskstore.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
