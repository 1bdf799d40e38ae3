package notify

import (
	"log/slog"

	"github.com/btouchard/beacon/internal/task"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes task events to connected MCP clients as log messages.
type MCPNotifier struct {
	sender MCPSender
}

func NewMCPNotifier(sender MCPSender) *MCPNotifier {
	return &MCPNotifier{sender: sender}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event task.Event) {
	switch event.Type {
	case task.EventStatusChanged:
		n.send("info", map[string]any{
			"type":    string(event.Type),
			"task_id": event.TaskID,
			"from":    string(event.From),
			"to":      string(event.To),
			"at":      event.At,
		})
	case task.EventNotification:
		if event.Notification == nil {
			return
		}
		n.send("notice", map[string]any{
			"type":            string(event.Type),
			"task_id":         event.TaskID,
			"notification_id": event.Notification.ID,
			"title":           event.Notification.Title,
			"body":            event.Notification.Body,
		})
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

func (n *MCPNotifier) send(level string, data map[string]any) {
	n.sender.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":  level,
		"logger": "beacon",
		"data":   data,
	})
}
