// Package bridge exposes typed task operations on top of a Caller, which is
// either a live client.Session or the in-process mock.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syarbeats/mcp-playground/client"
	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/taskprovider"
	"github.com/syarbeats/mcp-playground/taskstore"
)

// Pagination bounds for ListTasks.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Caller is the capability the bridge is built over.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListCapabilities(ctx context.Context) (*client.Capabilities, error)
	Connected() bool
	Mode() string
}

// activityReporter is implemented by callers that track wire activity.
type activityReporter interface {
	LastActivity() time.Time
}

var _ Caller = (*client.Session)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCallTimeout sets the per-call timeout passed to the caller.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service maps inbound task operations onto tool calls.
type Service struct {
	caller  Caller
	log     *slog.Logger
	timeout time.Duration
	started time.Time

	calls       atomic.Int64
	failures    atomic.Int64
	lastSuccess atomic.Int64

	mu   sync.Mutex
	caps *client.Capabilities
}

// New builds a Service over caller.
func New(caller Caller, opts ...Option) *Service {
	s := &Service{caller: caller, log: slog.Default(), started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTaskInput carries the fields of a new task.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
}

// TaskUpdate is a partial update. Nil fields are left untouched.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// ListTasksInput selects a page of tasks. Zero Page and PageSize take the
// defaults.
type ListTasksInput struct {
	Status   string
	Page     int
	PageSize int
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks      []taskstore.Task `json:"tasks"`
	Count      int              `json:"count"`
	Total      int              `json:"total"`
	Filter     string           `json:"filter"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// Status describes the bridge and its link to the provider.
type Status struct {
	Mode               string     `json:"mode"`
	Connected          bool       `json:"connected"`
	Message            string     `json:"message"`
	AvailableTools     int        `json:"available_tools"`
	AvailableResources int        `json:"available_resources"`
	StartedAt          time.Time  `json:"started_at"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
	LastSuccess        *time.Time `json:"last_success,omitempty"`
	LastActivity       *time.Time `json:"last_activity,omitempty"`
	Calls              int64      `json:"calls"`
	FailedCalls        int64      `json:"failed_calls"`
}

// observe records the outcome of one caller invocation.
func (s *Service) observe(op string, start time.Time, err error) error {
	s.calls.Add(1)
	if err == nil {
		s.lastSuccess.Store(time.Now().UnixNano())
		s.log.Debug("bridge.call.ok", slog.String("op", op), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return nil
	}
	s.failures.Add(1)
	be := classify(err)
	s.log.Warn("bridge.call.fail",
		slog.String("op", op),
		slog.String("kind", string(be.Kind)),
		slog.String("err", err.Error()),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return be
}

func (s *Service) callTool(ctx context.Context, name string, args map[string]any, out any) error {
	start := time.Now()
	res, err := s.caller.CallTool(ctx, name, args, s.timeout)
	if err != nil {
		return s.observe(name, start, err)
	}
	if res.IsError {
		return s.observe(name, start, &Error{Kind: KindInternal, Message: res.FirstText()})
	}
	if err := json.Unmarshal([]byte(res.FirstText()), out); err != nil {
		return s.observe(name, start, fmt.Errorf("decode %s result: %w", name, err))
	}
	return s.observe(name, start, nil)
}

// CreateTask creates a task.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*taskstore.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalidInput("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, invalidInput("description is required")
	}
	if in.Priority != "" && !taskstore.Priority(in.Priority).Valid() {
		return nil, invalidInput("invalid priority %q", in.Priority)
	}
	if in.Status != "" && !taskstore.Status(in.Status).Valid() {
		return nil, invalidInput("invalid status %q", in.Status)
	}

	args := map[string]any{"title": in.Title, "description": in.Description}
	if in.Priority != "" {
		args["priority"] = in.Priority
	}
	if in.Status != "" {
		args["status"] = in.Status
	}

	var task taskstore.Task
	if err := s.callTool(ctx, taskprovider.ToolCreateTask, args, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns one page of tasks, optionally filtered by status.
func (s *Service) ListTasks(ctx context.Context, in ListTasksInput) (*TaskPage, error) {
	page, size := in.Page, in.PageSize
	if page == 0 {
		page = DefaultPage
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		return nil, invalidInput("page must be at least 1")
	}
	if size < 1 || size > MaxPageSize {
		return nil, invalidInput("page_size must be between 1 and %d", MaxPageSize)
	}
	if in.Status != "" && !taskstore.Status(in.Status).Valid() {
		return nil, invalidInput("invalid status %q", in.Status)
	}

	args := map[string]any{}
	if in.Status != "" {
		args["status"] = in.Status
	}
	var res struct {
		Tasks  []taskstore.Task `json:"tasks"`
		Count  int              `json:"count"`
		Filter string           `json:"filter"`
	}
	if err := s.callTool(ctx, taskprovider.ToolListTasks, args, &res); err != nil {
		return nil, err
	}

	total := len(res.Tasks)
	from := min((page-1)*size, total)
	to := min(from+size, total)
	tasks := res.Tasks[from:to]
	if tasks == nil {
		tasks = []taskstore.Task{}
	}
	return &TaskPage{
		Tasks:      tasks,
		Count:      len(tasks),
		Total:      total,
		Filter:     res.Filter,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id string) (*taskstore.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("task id is required")
	}
	var task taskstore.Task
	if err := s.callTool(ctx, taskprovider.ToolGetTask, map[string]any{"task_id": id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a partial update.
func (s *Service) UpdateTask(ctx context.Context, id string, u TaskUpdate) (*taskstore.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("task id is required")
	}
	args := map[string]any{"task_id": id}
	if u.Title != nil {
		args["title"] = *u.Title
	}
	if u.Description != nil {
		args["description"] = *u.Description
	}
	if u.Status != nil {
		if !taskstore.Status(*u.Status).Valid() {
			return nil, invalidInput("invalid status %q", *u.Status)
		}
		args["status"] = *u.Status
	}
	if u.Priority != nil {
		if !taskstore.Priority(*u.Priority).Valid() {
			return nil, invalidInput("invalid priority %q", *u.Priority)
		}
		args["priority"] = *u.Priority
	}

	var task taskstore.Task
	if err := s.callTool(ctx, taskprovider.ToolUpdateTask, args, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id string) (*taskprovider.DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("task id is required")
	}
	var res taskprovider.DeleteResult
	if err := s.callTool(ctx, taskprovider.ToolDeleteTask, map[string]any{"task_id": id}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetStatistics returns task statistics.
func (s *Service) GetStatistics(ctx context.Context) (*taskstore.Statistics, error) {
	var st taskstore.Statistics
	if err := s.callTool(ctx, taskprovider.ToolGetStatistics, map[string]any{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetCapabilities lists what the provider offers.
func (s *Service) GetCapabilities(ctx context.Context) (*client.Capabilities, error) {
	start := time.Now()
	caps, err := s.caller.ListCapabilities(ctx)
	if err := s.observe("list_capabilities", start, err); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
	return caps, nil
}

// ReadResource reads a provider resource by URI.
func (s *Service) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, invalidInput("uri is required")
	}
	start := time.Now()
	res, err := s.caller.ReadResource(ctx, uri)
	if err := s.observe("read_resource", start, err); err != nil {
		if client.IsUnknownResource(err) {
			return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("unknown resource: %s", uri), Err: err}
		}
		return nil, err
	}
	return res, nil
}

// GetStatus reports liveness without calling the provider.
func (s *Service) GetStatus(ctx context.Context) *Status {
	st := &Status{
		Mode:          s.caller.Mode(),
		Connected:     s.caller.Connected(),
		StartedAt:     s.started,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Calls:         s.calls.Load(),
		FailedCalls:   s.failures.Load(),
	}
	if ns := s.lastSuccess.Load(); ns != 0 {
		t := time.Unix(0, ns)
		st.LastSuccess = &t
	}
	if ar, ok := s.caller.(activityReporter); ok {
		if t := ar.LastActivity(); !t.IsZero() {
			st.LastActivity = &t
		}
	}

	s.mu.Lock()
	if s.caps != nil {
		st.AvailableTools = len(s.caps.Tools)
		st.AvailableResources = len(s.caps.Resources)
	}
	s.mu.Unlock()

	switch {
	case st.Connected && st.Mode == "mock":
		st.Message = "serving from the in-process mock provider"
	case st.Connected:
		st.Message = "provider connected"
	default:
		st.Message = "provider not connected"
	}
	return st
}
