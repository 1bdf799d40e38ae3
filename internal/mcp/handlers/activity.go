package handlers

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/engine"
)

// ReportActivity returns a handler that feeds one activity signal.
func ReportActivity(e *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		taskID, _ := args["task_id"].(string)
		sessionID, _ := args["session_id"].(string)
		parent, _ := args["parent_session_id"].(string)
		kindStr, _ := args["kind"].(string)

		kind, err := activity.ParseKind(kindStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ev := activity.Event{
			TaskID:          taskID,
			SessionID:       sessionID,
			ParentSessionID: parent,
			Kind:            kind,
		}
		if err := e.ReportActivity(ev); err != nil {
			return mcp.NewToolResultError(describe(err, taskID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Recorded %s for %s.", kind, taskID)), nil
	}
}
