package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tracked tasks with their current status."),
			mcp.WithString("status",
				mcp.Description("Filter by status"),
				mcp.Enum("all", "IN_PROGRESS", "IN_REVIEW", "DONE", "CANCELED"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return (default: 20)"),
			),
		),
		handlers.ListTasks(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Show a task's status, live session activity and recent transitions."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
		),
		handlers.GetTask(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Register a task so its status can be tracked. Returns the task ID to pass with activity reports."),
			mcp.WithString("title",
				mcp.Description("Short human-readable title"),
			),
			mcp.WithString("task_id",
				mcp.Description("Explicit task ID. Generated if omitted."),
			),
			mcp.WithString("review_ref",
				mcp.Description("Pull request reference (owner/repo#123 or URL). When it merges, the task becomes DONE."),
			),
		),
		handlers.CreateTask(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("report_activity",
			mcp.WithDescription("Report an agent activity signal for a task. Idle signals are confirmed after a quiet period; any other main-session activity resumes the task immediately."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("The reporting agent session"),
			),
			mcp.WithString("kind",
				mcp.Required(),
				mcp.Description("Activity kind"),
				mcp.Enum("sessionCreated", "userMessage", "agentMessage", "toolExecuting", "busy", "idle"),
			),
			mcp.WithString("parent_session_id",
				mcp.Description("Set when the reporter is a subagent of another session"),
			),
		),
		handlers.ReportActivity(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("set_review",
			mcp.WithDescription("Attach a pull request reference to a task."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
			mcp.WithString("review_ref",
				mcp.Required(),
				mcp.Description("Pull request reference (owner/repo#123 or URL)"),
			),
		),
		handlers.SetReview(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("cancel_task",
			mcp.WithDescription("Cancel a task that is not finished yet."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID to cancel"),
			),
		),
		handlers.CancelTask(deps.Engine),
	)

	s.AddTool(
		mcp.NewTool("sync_reviews",
			mcp.WithDescription("Check every open task's pull request now and mark merged ones DONE."),
		),
		handlers.SyncReviews(deps.Engine),
	)
}
