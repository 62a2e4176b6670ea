package taskprovider

import (
	"context"

	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/taskstore"
)

func (h *handlers) resources() []provider.Resource {
	static := func(uri, name, desc string, read provider.ResourceHandler) provider.Resource {
		return provider.Resource{
			Descriptor: mcp.Resource{URI: uri, Name: name, Description: desc, MimeType: provider.MimeTypeJSON},
			Read:       read,
		}
	}
	byStatus := func(s taskstore.Status) provider.ResourceHandler {
		return func(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
			return h.listJSON(ctx, uri, taskstore.Filter{Status: s})
		}
	}

	return []provider.Resource{
		static(URIAllTasks, "All Tasks", "Get all tasks in the system", func(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
			return h.listJSON(ctx, uri, taskstore.Filter{})
		}),
		static(URIStatistics, "Task Statistics", "Get statistics about tasks", h.readStatistics),
		static(URIPendingTasks, "Pending Tasks", "Get all pending tasks", byStatus(taskstore.StatusPending)),
		static(URIInProgress, "In Progress Tasks", "Get all in-progress tasks", byStatus(taskstore.StatusInProgress)),
		static(URICompletedTasks, "Completed Tasks", "Get all completed tasks", byStatus(taskstore.StatusCompleted)),
	}
}

func (h *handlers) templates() []provider.Template {
	tmpl := func(pattern, name, desc string, read provider.TemplateHandler) provider.Template {
		return provider.MustTemplate(mcp.ResourceTemplate{
			URITemplate: pattern,
			Name:        name,
			Description: desc,
			MimeType:    provider.MimeTypeJSON,
		}, read)
	}

	return []provider.Template{
		tmpl(TemplateTask, "Individual Task", "Get a specific task by ID", h.readTask),
		tmpl(TemplateByStatus, "Tasks by Status", "Get tasks filtered by status", func(ctx context.Context, uri, status string) (*mcp.ReadResourceResult, error) {
			return h.listJSON(ctx, uri, taskstore.Filter{Status: taskstore.Status(status)})
		}),
		tmpl(TemplateByPriority, "Tasks by Priority", "Get tasks filtered by priority", func(ctx context.Context, uri, priority string) (*mcp.ReadResourceResult, error) {
			return h.listJSON(ctx, uri, taskstore.Filter{Priority: taskstore.Priority(priority)})
		}),
	}
}

func (h *handlers) readStatistics(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	st, err := taskstore.Stats(ctx, h.store)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONContents(uri, st)
}

func (h *handlers) readTask(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	task, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return provider.JSONContents(uri, task)
}
