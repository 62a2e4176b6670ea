// Package memory provides an in-process implementation of taskstore.Store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syarbeats/mcp-playground/taskstore"
)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSequentialIDs generates ids of the form prefix-0001, prefix-0002, ...
func WithSequentialIDs(prefix string) Option {
	return func(s *Store) {
		var n int
		s.newID = func() string {
			n++
			return fmt.Sprintf("%s-%04d", prefix, n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.clock = fn }
}

// Store keeps tasks in memory in insertion order.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*taskstore.Task
	order []string
	newID func() string
	clock func() time.Time
	last  time.Time
}

var _ taskstore.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tasks: make(map[string]*taskstore.Task),
		newID: taskstore.NewID,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeeded creates a store holding the first n sample tasks.
func NewSeeded(n int, opts ...Option) *Store {
	s := New(opts...)
	// Seeding an empty in-memory store cannot fail.
	_ = taskstore.Seed(context.Background(), s, n)
	return s
}

// now returns a strictly increasing UTC timestamp so creation order is total.
// Callers hold s.mu.
func (s *Store) now() time.Time {
	t := s.clock().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *Store) Create(_ context.Context, d taskstore.Draft) (*taskstore.Task, error) {
	d, err := d.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := &taskstore.Task{
		ID:          s.newID(),
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)

	cp := *t
	return &cp, nil
}

func (s *Store) Get(_ context.Context, id string) (*taskstore.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, taskstore.NotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) List(_ context.Context, f taskstore.Filter) ([]*taskstore.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*taskstore.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if f.Matches(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	taskstore.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, u taskstore.Update) (*taskstore.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, taskstore.NotFound(id)
	}
	if err := u.Apply(t, s.now()); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return taskstore.NotFound(id)
	}
	delete(s.tasks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
