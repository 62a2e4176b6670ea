// Package taskprovider registers the task-management tools and resources on
// a provider.Runtime backed by a taskstore.Store.
package taskprovider

import (
	"context"
	"errors"

	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/taskstore"
)

const (
	// Name is reported as serverInfo.name.
	Name = "task-manager"
	// Version is reported as serverInfo.version.
	Version = "1.0.0"
)

// Tool names.
const (
	ToolCreateTask    = "create_task"
	ToolListTasks     = "list_tasks"
	ToolGetTask       = "get_task"
	ToolUpdateTask    = "update_task"
	ToolDeleteTask    = "delete_task"
	ToolGetStatistics = "get_statistics"
)

// Static resource URIs.
const (
	URIAllTasks       = "tasks://all"
	URIStatistics     = "tasks://statistics"
	URIPendingTasks   = "tasks://pending"
	URIInProgress     = "tasks://in_progress"
	URICompletedTasks = "tasks://completed"
)

// Resource templates.
const (
	TemplateTask       = "task://{task_id}"
	TemplateByStatus   = "tasks://status/{status}"
	TemplateByPriority = "tasks://priority/{priority}"
)

// New builds a started runtime exposing store through the task tools and
// resources.
func New(store taskstore.Store, opts ...provider.Option) (*provider.Runtime, error) {
	rt := provider.New(mcp.ImplementationInfo{Name: Name, Version: Version}, opts...)
	if err := Register(rt, store); err != nil {
		return nil, err
	}
	if err := rt.Start(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Register adds every task tool, resource and template to rt.
func Register(rt *provider.Runtime, store taskstore.Store) error {
	h := &handlers{store: store}

	for _, t := range h.tools() {
		if err := rt.RegisterTool(t); err != nil {
			return err
		}
	}
	for _, r := range h.resources() {
		if err := rt.RegisterResource(r); err != nil {
			return err
		}
	}
	for _, t := range h.templates() {
		if err := rt.RegisterTemplate(t); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	store taskstore.Store
}

// storeError translates store failures into errors reported to the caller.
func storeError(err error) error {
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		return provider.NotFound("%s", err.Error())
	case errors.Is(err, taskstore.ErrValidation):
		return provider.InvalidArguments("%s", err.Error())
	default:
		return err
	}
}

func (h *handlers) listJSON(ctx context.Context, uri string, f taskstore.Filter) (*mcp.ReadResourceResult, error) {
	tasks, err := h.store.List(ctx, f)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONContents(uri, tasks)
}
