package task

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btouchard/beacon/internal/lock"
	"github.com/btouchard/beacon/internal/store"
)

// Store is the subset of persistence the Controller needs.
type Store interface {
	GetTask(id string) (*store.TaskRecord, error)
	UpdateTaskStatus(id, status string, at time.Time) error
	AddEvent(e *store.TaskEvent) error
}

// Result describes the outcome of a transition request.
type Result struct {
	Applied bool
	From    Status
	To      Status
}

// Controller is the single writer of task status. Transitions for the same
// task are serialized; different tasks proceed in parallel.
type Controller struct {
	store    Store
	locks    *lock.Keyed
	policy   PolicyFunc
	onNotify NotifyFunc
	now      func() time.Time
}

// NewController creates a Controller persisting through s.
func NewController(s Store) *Controller {
	return &Controller{
		store:  s,
		locks:  lock.NewKeyed(),
		policy: DefaultPolicy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifyFunc sets the callback for applied transitions.
func (c *Controller) SetNotifyFunc(fn NotifyFunc) {
	c.onNotify = fn
}

// SetPolicy replaces the notification policy.
func (c *Controller) SetPolicy(p PolicyFunc) {
	c.policy = p
}

// Transition moves taskID to target. It is a no-op when the task is already
// in target, is terminal, or no longer exists.
func (c *Controller) Transition(taskID string, target Status) (Result, error) {
	return c.apply(taskID, target, false)
}

// Cancel is the explicit cancellation path: it sets CANCELED on any
// non-terminal task.
func (c *Controller) Cancel(taskID string) (Result, error) {
	return c.apply(taskID, StatusCanceled, true)
}

func (c *Controller) apply(taskID string, target Status, explicit bool) (Result, error) {
	if !target.Valid() {
		return Result{}, fmt.Errorf("invalid target status %q", target)
	}
	if explicit && target != StatusCanceled {
		return Result{}, fmt.Errorf("explicit transitions only cancel, got %s", target)
	}

	unlock := c.locks.Lock(taskID)
	defer unlock()

	rec, err := c.store.GetTask(taskID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("transition skipped, task gone", "task_id", taskID, "target", target)
		return Result{To: target}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading task %s: %w", taskID, err)
	}

	from := Status(rec.Status)
	res := Result{From: from, To: target}

	if from == target {
		return res, nil
	}
	if from.IsTerminal() {
		slog.Debug("transition skipped, task is terminal",
			"task_id", taskID,
			"status", from,
			"target", target)
		return res, nil
	}

	at := c.now()
	if err := c.store.UpdateTaskStatus(taskID, string(target), at); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("transition skipped, task deleted mid-flight", "task_id", taskID)
			return res, nil
		}
		return Result{}, fmt.Errorf("saving status for %s: %w", taskID, err)
	}
	res.Applied = true

	slog.Info("task status changed",
		"task_id", taskID,
		"from", from,
		"to", target)

	if err := c.store.AddEvent(&store.TaskEvent{
		TaskID:     taskID,
		EventType:  string(EventStatusChanged),
		FromStatus: string(from),
		ToStatus:   string(target),
		CreatedAt:  at,
	}); err != nil {
		slog.Warn("failed to record task event", "task_id", taskID, "error", err)
	}

	rec.Status = string(target)
	rec.StatusUpdatedAt = at
	c.emit(FromRecord(rec), from, target, at)

	return res, nil
}

// emit publishes the status change and, when the policy asks for it, a
// notification. Called with the task lock held so per-task order is kept.
func (c *Controller) emit(t Task, from, to Status, at time.Time) {
	if c.onNotify == nil {
		return
	}

	c.onNotify(Event{
		Type:   EventStatusChanged,
		TaskID: t.ID,
		From:   from,
		To:     to,
		At:     at,
	})

	if c.policy == nil {
		return
	}
	title, body, ok := c.policy(t, from, to)
	if !ok {
		return
	}
	c.onNotify(Event{
		Type:   EventNotification,
		TaskID: t.ID,
		From:   from,
		To:     to,
		At:     at,
		Notification: &Notification{
			ID:     NotificationID(t.ID, to, at),
			TaskID: t.ID,
			Title:  title,
			Body:   body,
		},
	})
}
