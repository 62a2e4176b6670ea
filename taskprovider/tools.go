package taskprovider

import (
	"context"

	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/taskstore"
)

type createTaskArgs struct {
	Title       string `json:"title" jsonschema:"description=Task title"`
	Description string `json:"description" jsonschema:"description=Task description"`
	Priority    string `json:"priority,omitempty" jsonschema:"description=Task priority,enum=low,enum=medium,enum=high,default=medium"`
	Status      string `json:"status,omitempty" jsonschema:"description=Task status,enum=pending,enum=in_progress,enum=completed,default=pending"`
}

type listTasksArgs struct {
	Status string `json:"status,omitempty" jsonschema:"description=Filter by status,enum=pending,enum=in_progress,enum=completed"`
}

type taskIDArgs struct {
	TaskID string `json:"task_id" jsonschema:"description=Task ID"`
}

type updateTaskArgs struct {
	TaskID      string  `json:"task_id" jsonschema:"description=Task ID"`
	Title       *string `json:"title,omitempty" jsonschema:"description=New title"`
	Description *string `json:"description,omitempty" jsonschema:"description=New description"`
	Status      *string `json:"status,omitempty" jsonschema:"description=New status,enum=pending,enum=in_progress,enum=completed"`
	Priority    *string `json:"priority,omitempty" jsonschema:"description=New priority,enum=low,enum=medium,enum=high"`
}

// ListResult is the payload of list_tasks.
type ListResult struct {
	Tasks  []*taskstore.Task `json:"tasks"`
	Count  int               `json:"count"`
	Filter string            `json:"filter"`
}

// DeleteResult is the payload of delete_task.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	TaskID  string `json:"task_id"`
}

func (h *handlers) tools() []provider.Tool {
	return []provider.Tool{
		provider.NewTool(ToolCreateTask, h.createTask, provider.WithToolDescription("Create a new task with validation")),
		provider.NewTool(ToolListTasks, h.listTasks, provider.WithToolDescription("List all tasks with optional status filter")),
		provider.NewTool(ToolGetTask, h.getTask, provider.WithToolDescription("Get a specific task by ID")),
		provider.NewTool(ToolUpdateTask, h.updateTask, provider.WithToolDescription("Update an existing task with validation")),
		provider.NewTool(ToolDeleteTask, h.deleteTask, provider.WithToolDescription("Delete a task by ID")),
		provider.NewTool(ToolGetStatistics, h.getStatistics, provider.WithToolDescription("Get comprehensive task statistics")),
	}
}

func (h *handlers) createTask(ctx context.Context, a createTaskArgs) (*mcp.CallToolResult, error) {
	task, err := h.store.Create(ctx, taskstore.Draft{
		Title:       a.Title,
		Description: a.Description,
		Status:      taskstore.Status(a.Status),
		Priority:    taskstore.Priority(a.Priority),
	})
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONResult(task)
}

func (h *handlers) listTasks(ctx context.Context, a listTasksArgs) (*mcp.CallToolResult, error) {
	tasks, err := h.store.List(ctx, taskstore.Filter{Status: taskstore.Status(a.Status)})
	if err != nil {
		return nil, storeError(err)
	}
	filter := a.Status
	if filter == "" {
		filter = "all"
	}
	return provider.JSONResult(ListResult{Tasks: tasks, Count: len(tasks), Filter: filter})
}

func (h *handlers) getTask(ctx context.Context, a taskIDArgs) (*mcp.CallToolResult, error) {
	task, err := h.store.Get(ctx, a.TaskID)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONResult(task)
}

func (h *handlers) updateTask(ctx context.Context, a updateTaskArgs) (*mcp.CallToolResult, error) {
	u := taskstore.Update{Title: a.Title, Description: a.Description}
	if a.Status != nil {
		s := taskstore.Status(*a.Status)
		u.Status = &s
	}
	if a.Priority != nil {
		p := taskstore.Priority(*a.Priority)
		u.Priority = &p
	}
	task, err := h.store.Update(ctx, a.TaskID, u)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONResult(task)
}

func (h *handlers) deleteTask(ctx context.Context, a taskIDArgs) (*mcp.CallToolResult, error) {
	if err := h.store.Delete(ctx, a.TaskID); err != nil {
		return nil, storeError(err)
	}
	return provider.JSONResult(DeleteResult{Deleted: true, TaskID: a.TaskID})
}

func (h *handlers) getStatistics(ctx context.Context, _ struct{}) (*mcp.CallToolResult, error) {
	st, err := taskstore.Stats(ctx, h.store)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONResult(st)
}
