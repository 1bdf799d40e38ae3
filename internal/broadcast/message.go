package broadcast

import (
	"time"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/task"
)

// Message types sent to clients.
const (
	TypeTaskStatusChanged = "taskStatusChanged"
	TypeNotification      = "notification"
	TypeActivity          = "activity"
	TypeAttached          = "attached"
	TypeDetached          = "detached"
	TypeError             = "error"
)

// Message is the envelope written to every client connection.
type Message struct {
	Type         string             `json:"type"`
	TaskID       string             `json:"task_id,omitempty"`
	Scope        string             `json:"scope,omitempty"`
	From         task.Status        `json:"from,omitempty"`
	To           task.Status        `json:"to,omitempty"`
	At           *time.Time         `json:"at,omitempty"`
	Notification *task.Notification `json:"notification,omitempty"`
	Activity     *activity.Event    `json:"activity,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// FromTaskEvent converts a Controller event to its wire form. ok is false
// for event types clients do not receive.
func FromTaskEvent(e task.Event) (Message, bool) {
	at := e.At
	switch e.Type {
	case task.EventStatusChanged:
		return Message{
			Type:   TypeTaskStatusChanged,
			TaskID: e.TaskID,
			From:   e.From,
			To:     e.To,
			At:     &at,
		}, true
	case task.EventNotification:
		if e.Notification == nil {
			return Message{}, false
		}
		return Message{
			Type:         TypeNotification,
			TaskID:       e.TaskID,
			To:           e.To,
			At:           &at,
			Notification: e.Notification,
		}, true
	}
	return Message{}, false
}
