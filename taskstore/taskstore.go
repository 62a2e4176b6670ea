// Package taskstore defines the task model served by the built-in provider
// capabilities and the Store interface its backends implement.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no task exists with the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrValidation is returned when a draft or update carries invalid values.
	ErrValidation = errors.New("invalid task")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every valid priority in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

// Task is a single unit of tracked work.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Draft carries the fields of a task about to be created.
type Draft struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
}

// Normalize trims the text fields, fills in defaults and validates the result.
func (d Draft) Normalize() (Draft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}

	if d.Title == "" {
		return d, fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if d.Description == "" {
		return d, fmt.Errorf("%w: description cannot be empty", ErrValidation)
	}
	if err := validateStatus(d.Status); err != nil {
		return d, err
	}
	if err := validatePriority(d.Priority); err != nil {
		return d, err
	}
	return d, nil
}

// Update is a partial modification. Nil fields are left untouched.
type Update struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
}

// Apply validates u and writes it onto t, stamping UpdatedAt with now.
// t is not modified when validation fails.
func (u Update) Apply(t *Task, now time.Time) error {
	next := *t
	if u.Title != nil {
		v := strings.TrimSpace(*u.Title)
		if v == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		next.Title = v
	}
	if u.Description != nil {
		v := strings.TrimSpace(*u.Description)
		if v == "" {
			return fmt.Errorf("%w: description cannot be empty", ErrValidation)
		}
		next.Description = v
	}
	if u.Status != nil {
		if err := validateStatus(*u.Status); err != nil {
			return err
		}
		next.Status = *u.Status
	}
	if u.Priority != nil {
		if err := validatePriority(*u.Priority); err != nil {
			return err
		}
		next.Priority = *u.Priority
	}
	next.UpdatedAt = now.UTC()
	*t = next
	return nil
}

func validateStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: invalid status %q, must be one of %v", ErrValidation, s, Statuses)
	}
	return nil
}

func validatePriority(p Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: invalid priority %q, must be one of %v", ErrValidation, p, Priorities)
	}
	return nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status   Status
	Priority Priority
}

// Validate rejects filters naming unknown statuses or priorities.
func (f Filter) Validate() error {
	if f.Status != "" {
		if err := validateStatus(f.Status); err != nil {
			return err
		}
	}
	if f.Priority != "" {
		if err := validatePriority(f.Priority); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether t satisfies the filter.
func (f Filter) Matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	return true
}

// Store persists tasks. Implementations must be safe for concurrent use.
type Store interface {
	// Create validates the draft and stores a new task with a fresh id.
	Create(ctx context.Context, d Draft) (*Task, error)
	// Get returns the task with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Task, error)
	// List returns the matching tasks, newest first.
	List(ctx context.Context, f Filter) ([]*Task, error)
	// Update applies a partial update and returns the stored result.
	Update(ctx context.Context, id string, u Update) (*Task, error)
	// Delete removes the task or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Close releases backend resources.
	Close() error
}

// NewID returns a random task id.
func NewID() string { return uuid.NewString() }

// NotFound builds the error returned for a missing id.
func NotFound(id string) error {
	return fmt.Errorf("%w with id: %s", ErrNotFound, id)
}

// SortNewestFirst orders tasks by creation time, newest first. Ties keep
// their relative order reversed so that later inserts come first.
func SortNewestFirst(tasks []*Task) {
	slices.Reverse(tasks)
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Statistics summarises the contents of a store.
type Statistics struct {
	Total          int              `json:"total"`
	ByStatus       map[Status]int   `json:"by_status"`
	ByPriority     map[Priority]int `json:"by_priority"`
	CompletionRate float64          `json:"completion_rate"`
	RecentTaskIDs  []string         `json:"recent_task_ids"`
}

// RecentLimit bounds Statistics.RecentTaskIDs.
const RecentLimit = 5

// ComputeStatistics summarises tasks, which must already be sorted newest first.
func ComputeStatistics(tasks []*Task) Statistics {
	st := Statistics{
		Total:         len(tasks),
		ByStatus:      make(map[Status]int, len(Statuses)),
		ByPriority:    make(map[Priority]int, len(Priorities)),
		RecentTaskIDs: []string{},
	}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	for _, p := range Priorities {
		st.ByPriority[p] = 0
	}
	for i, t := range tasks {
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		if i < RecentLimit {
			st.RecentTaskIDs = append(st.RecentTaskIDs, t.ID)
		}
	}
	if st.Total > 0 {
		rate := float64(st.ByStatus[StatusCompleted]) / float64(st.Total) * 100
		st.CompletionRate = math.Round(rate*100) / 100
	}
	return st
}

// Stats lists every task in s and summarises them.
func Stats(ctx context.Context, s Store) (Statistics, error) {
	tasks, err := s.List(ctx, Filter{})
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(tasks), nil
}

// SampleDrafts returns the demonstration tasks used to seed fresh stores.
func SampleDrafts() []Draft {
	return []Draft{
		{
			Title:       "Learn MCP Protocol",
			Description: "Understand how Model Context Protocol works and its key concepts",
			Status:      StatusInProgress,
			Priority:    PriorityHigh,
		},
		{
			Title:       "Build MCP Server",
			Description: "Implement a functional MCP server with tools and resources",
			Status:      StatusCompleted,
			Priority:    PriorityHigh,
		},
		{
			Title:       "Test Integration",
			Description: "Test the complete MCP system integration with all components",
			Status:      StatusPending,
			Priority:    PriorityMedium,
		},
		{
			Title:       "Write Documentation",
			Description: "Create comprehensive documentation for the MCP system",
			Status:      StatusPending,
			Priority:    PriorityMedium,
		},
		{
			Title:       "Performance Optimization",
			Description: "Optimize the MCP system for better performance",
			Status:      StatusPending,
			Priority:    PriorityLow,
		},
	}
}

// Seed creates the first n sample drafts in s. n larger than the sample set
// is clamped.
func Seed(ctx context.Context, s Store, n int) error {
	drafts := SampleDrafts()
	n = min(max(n, 0), len(drafts))
	for _, d := range drafts[:n] {
		if _, err := s.Create(ctx, d); err != nil {
			return fmt.Errorf("failed to seed task %q: %w", d.Title, err)
		}
	}
	return nil
}
