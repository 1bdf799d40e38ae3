package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/engine"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

// ListTasks returns a handler that lists tasks with optional filters.
func ListTasks(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		filter := store.TaskFilter{Limit: 20}
		if status, ok := args["status"].(string); ok {
			filter.Status = status
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			filter.Limit = int(limit)
		}

		tasks, err := e.Tasks(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %s", err)), nil
		}
		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Tasks (%d found)\n\n", len(tasks))
		for _, t := range tasks {
			fmt.Fprintf(&sb, "%s **%s** %s\n", statusIcon(t.Status), t.ID, t.Status)
			if t.Title != "" {
				fmt.Fprintf(&sb, "  Title: %s\n", t.Title)
			}
			if t.ReviewRef != "" {
				fmt.Fprintf(&sb, "  Review: %s\n", t.ReviewRef)
			}
			fmt.Fprintf(&sb, "  Since: %s\n\n", t.StatusUpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// GetTask returns a handler that describes one task in detail.
func GetTask(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, _ := req.GetArguments()["task_id"].(string)
		if taskID == "" {
			return mcp.NewToolResultError("task_id is required"), nil
		}

		d, err := e.Task(taskID)
		if err != nil {
			return mcp.NewToolResultError(describe(err, taskID)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s **%s** %s\n", statusIcon(d.Task.Status), d.Task.ID, d.Task.Status)
		if d.Task.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", d.Task.Title)
		}
		if d.Task.ReviewRef != "" {
			fmt.Fprintf(&sb, "Review: %s\n", d.Task.ReviewRef)
		}

		if a := d.Activity; a != nil {
			fmt.Fprintf(&sb, "\nActivity: main session %s, %d session(s), %d subagent(s)", a.MainSession, a.Sessions, a.Subagents)
			if a.IdlePending {
				sb.WriteString(", idle pending")
			}
			sb.WriteString("\n")
		}

		if len(d.Events) > 0 {
			sb.WriteString("\nHistory:\n")
			for _, ev := range d.Events {
				if ev.From != "" {
					fmt.Fprintf(&sb, "  %s  %s -> %s\n", ev.At, ev.From, ev.To)
				} else {
					fmt.Fprintf(&sb, "  %s  %s %s\n", ev.At, ev.Type, ev.To)
				}
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// CreateTask returns a handler that registers a task.
func CreateTask(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		id, _ := args["task_id"].(string)
		title, _ := args["title"].(string)
		ref, _ := args["review_ref"].(string)

		t, err := e.CreateTask(id, title, ref)
		if err != nil {
			return mcp.NewToolResultError(describe(err, id)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task created\n\n- ID: %s\n- Status: %s\n\nReport activity with task_id=%s.", t.ID, t.Status, t.ID)), nil
	}
}

// SetReview returns a handler that attaches a review reference.
func SetReview(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		taskID, _ := args["task_id"].(string)
		ref, _ := args["review_ref"].(string)
		if taskID == "" || ref == "" {
			return mcp.NewToolResultError("task_id and review_ref are required"), nil
		}

		if err := e.SetReviewRef(taskID, ref); err != nil {
			return mcp.NewToolResultError(describe(err, taskID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s now tracks %s. It becomes DONE when the review merges.", taskID, ref)), nil
	}
}

// CancelTask returns a handler for the explicit cancellation path.
func CancelTask(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, _ := req.GetArguments()["task_id"].(string)
		if taskID == "" {
			return mcp.NewToolResultError("task_id is required"), nil
		}

		res, err := e.Cancel(taskID)
		if err != nil {
			return mcp.NewToolResultError(describe(err, taskID)), nil
		}
		if !res.Applied {
			return mcp.NewToolResultText(fmt.Sprintf("Task %s is already %s.", taskID, res.From)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s canceled.", taskID)), nil
	}
}

// SyncReviews returns a handler that runs a reconciliation sweep.
func SyncReviews(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := e.Sync(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Sync failed: %s", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Checked %d task(s): %d merged, %d lookup failure(s).", res.Checked, res.Merged, res.Failed)), nil
	}
}

func describe(err error, taskID string) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Sprintf("Task not found: %s", taskID)
	case errors.Is(err, engine.ErrInvalid), errors.Is(err, engine.ErrExists), errors.Is(err, engine.ErrTerminal):
		return err.Error()
	default:
		return fmt.Sprintf("Internal error: %s", err)
	}
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return "🔄"
	case task.StatusInReview:
		return "👀"
	case task.StatusDone:
		return "✅"
	case task.StatusCanceled:
		return "🚫"
	default:
		return "❓"
	}
}
