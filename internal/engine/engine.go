// Package engine wires the status authority, the activity observer, the
// reconciliation poller and the broadcaster behind one API used by the HTTP
// and MCP surfaces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/broadcast"
	"github.com/btouchard/beacon/internal/reconcile"
	"github.com/btouchard/beacon/internal/review"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

var (
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid request")
	// ErrExists is returned when creating a task whose ID is taken.
	ErrExists = errors.New("task already exists")
	// ErrTerminal is returned when activity arrives for a finished task.
	ErrTerminal = errors.New("task is finished")
	// ErrDisabled is returned by Sync when no poller is configured.
	ErrDisabled = errors.New("review reconciliation is disabled")
)

const (
	maxTitleLen   = 200
	eventsPerTask = 20
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Engine is the application service.
type Engine struct {
	store       store.Store
	ctrl        *task.Controller
	observer    *activity.Observer
	poller      *reconcile.Poller
	broadcaster *broadcast.Broadcaster
}

// Deps holds the components an Engine coordinates.
type Deps struct {
	Store       store.Store
	Controller  *task.Controller
	Observer    *activity.Observer
	Poller      *reconcile.Poller // optional
	Broadcaster *broadcast.Broadcaster
}

func New(d Deps) *Engine {
	return &Engine{
		store:       d.Store,
		ctrl:        d.Controller,
		observer:    d.Observer,
		poller:      d.Poller,
		broadcaster: d.Broadcaster,
	}
}

// TaskDetail is a task with its live activity state and recent history.
type TaskDetail struct {
	Task     task.Task          `json:"task"`
	Activity *activity.Snapshot `json:"activity,omitempty"`
	Events   []Event            `json:"events"`
}

// Event is an audit trail entry.
type Event struct {
	Type    string `json:"type"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Message string `json:"message,omitempty"`
	At      string `json:"at"`
}

// CreateTask registers a task. An empty id gets a generated one.
func (e *Engine) CreateTask(id, title, reviewRef string) (task.Task, error) {
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLen {
		return task.Task{}, fmt.Errorf("%w: title longer than %d characters", ErrInvalid, maxTitleLen)
	}
	if reviewRef != "" {
		if _, err := review.ParseRef(reviewRef); err != nil {
			return task.Task{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	rec := task.New(title, reviewRef)
	if id != "" {
		if !idPattern.MatchString(id) {
			return task.Task{}, fmt.Errorf("%w: task id %q", ErrInvalid, id)
		}
		if _, err := e.store.GetTask(id); err == nil {
			return task.Task{}, fmt.Errorf("%w: %s", ErrExists, id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return task.Task{}, err
		}
		rec.ID = id
	}

	if err := e.store.CreateTask(rec); err != nil {
		return task.Task{}, fmt.Errorf("creating task: %w", err)
	}
	if err := e.store.AddEvent(&store.TaskEvent{
		TaskID:    rec.ID,
		EventType: "task.created",
		ToStatus:  rec.Status,
		CreatedAt: rec.CreatedAt,
	}); err != nil {
		slog.Warn("failed to record task event", "task_id", rec.ID, "error", err)
	}

	slog.Info("task registered", "task_id", rec.ID, "review_ref", reviewRef)
	return task.FromRecord(rec), nil
}

// Task returns one task with its activity snapshot and recent events.
func (e *Engine) Task(id string) (TaskDetail, error) {
	rec, err := e.store.GetTask(id)
	if err != nil {
		return TaskDetail{}, err
	}

	d := TaskDetail{Task: task.FromRecord(rec), Events: []Event{}}
	if snap, ok := e.observer.Snapshot(id); ok {
		d.Activity = &snap
	}

	events, err := e.store.GetEvents(id, eventsPerTask)
	if err != nil {
		return TaskDetail{}, fmt.Errorf("loading events: %w", err)
	}
	for _, ev := range events {
		d.Events = append(d.Events, Event{
			Type:    ev.EventType,
			From:    ev.FromStatus,
			To:      ev.ToStatus,
			Message: ev.Message,
			At:      ev.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return d, nil
}

// Tasks lists tasks matching f. f.Status may be "all" or empty for every
// status.
func (e *Engine) Tasks(f store.TaskFilter) ([]task.Task, error) {
	if f.Status != "" && f.Status != "all" {
		if _, err := task.ParseStatus(f.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	recs, err := e.store.ListTasks(f)
	if err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(recs))
	for i := range recs {
		out = append(out, task.FromRecord(&recs[i]))
	}
	return out, nil
}

// SetReviewRef attaches an external review reference to a task.
func (e *Engine) SetReviewRef(id, ref string) error {
	if _, err := review.ParseRef(ref); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := e.store.SetReviewRef(id, ref); err != nil {
		return err
	}
	slog.Info("review reference set", "task_id", id, "review_ref", ref)
	return nil
}

// Cancel is the explicit cancellation path.
func (e *Engine) Cancel(id string) (task.Result, error) {
	if _, err := e.store.GetTask(id); err != nil {
		return task.Result{}, err
	}
	return e.ctrl.Cancel(id)
}

// DeleteTask removes a task and forgets its activity state. Pending idle
// timers for it become no-ops.
func (e *Engine) DeleteTask(id string) error {
	if err := e.store.DeleteTask(id); err != nil {
		return err
	}
	e.observer.Forget(id)
	slog.Info("task deleted", "task_id", id)
	return nil
}

// ReportActivity feeds an activity signal to the observer and relays it to
// clients attached to the task.
func (e *Engine) ReportActivity(ev activity.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	rec, err := e.store.GetTask(ev.TaskID)
	if err != nil {
		return err
	}
	if task.Status(rec.Status).IsTerminal() {
		e.observer.Forget(ev.TaskID)
		return fmt.Errorf("%w: %s is %s", ErrTerminal, ev.TaskID, rec.Status)
	}

	if err := e.observer.Observe(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if e.broadcaster != nil {
		e.broadcaster.BroadcastScoped(ev.TaskID, broadcast.Message{
			Type:     broadcast.TypeActivity,
			TaskID:   ev.TaskID,
			Activity: &ev,
		})
	}
	return nil
}

// Sync runs a reconciliation sweep now.
func (e *Engine) Sync(ctx context.Context) (reconcile.SweepResult, error) {
	if e.poller == nil {
		return reconcile.SweepResult{}, ErrDisabled
	}
	return e.poller.Sweep(ctx)
}

// Tracked returns how many tasks have live activity state.
func (e *Engine) Tracked() int {
	return e.observer.Tracked()
}

// Notify implements notify.Notifier: once a task reaches a terminal status
// its activity state is dropped.
func (e *Engine) Notify(ev task.Event) {
	if ev.Type == task.EventStatusChanged && ev.To.IsTerminal() {
		e.observer.Forget(ev.TaskID)
	}
}
