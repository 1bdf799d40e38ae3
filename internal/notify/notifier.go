package notify

import (
	"log/slog"

	"github.com/btouchard/beacon/internal/task"
)

// Notifier receives task events. Implementations must not block: the Hub is
// invoked while the Controller holds the task's transition lock.
type Notifier interface {
	Notify(event task.Event)
}

// Func adapts a plain function to the Notifier interface.
type Func func(task.Event)

func (f Func) Notify(event task.Event) { f(event) }

// Hub dispatches events to multiple notifiers, in registration order and on
// the caller's goroutine, so per-task ordering survives the fan-out.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Notify sends an event to all registered notifiers. A panicking notifier is
// logged and skipped.
func (h *Hub) Notify(event task.Event) {
	for _, n := range h.notifiers {
		h.deliver(n, event)
	}
}

func (h *Hub) deliver(n Notifier, event task.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notifier panicked",
				"task_id", event.TaskID,
				"event", event.Type,
				"panic", r)
		}
	}()
	n.Notify(event)
}
