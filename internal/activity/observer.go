// Package activity turns raw agent activity signals into task status
// requests.
//
// Only the main session of a task drives status. Activity from it resumes
// the task immediately; idle is confirmed only after a quiet period. Each
// main-session signal bumps a per-task version, and an idle timer acts only
// if the version it captured is still current when it fires, so a stale
// timer never needs to be cancelled to be harmless.
package activity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/beacon/internal/task"
)

// DefaultIdleDelay is how long the main session must stay idle before the
// task is considered ready for review.
const DefaultIdleDelay = 1500 * time.Millisecond

// Transitioner is the status authority the Observer reports to.
type Transitioner interface {
	Transition(taskID string, target task.Status) (task.Result, error)
}

type session struct {
	parent string
	main   bool
}

// taskState is guarded by its own mu; the Observer map only hands it out.
type taskState struct {
	mu       sync.Mutex
	main     string
	sessions map[string]*session
	version  uint64
	idle     *time.Timer
}

// Snapshot is a read-only view of a task's activity state.
type Snapshot struct {
	MainSession string `json:"main_session"`
	Sessions    int    `json:"sessions"`
	Subagents   int    `json:"subagents"`
	Version     uint64 `json:"version"`
	IdlePending bool   `json:"idle_pending"`
}

// Observer tracks the sessions of every active task.
type Observer struct {
	mu    sync.Mutex
	tasks map[string]*taskState

	ctrl      Transitioner
	idleDelay time.Duration
}

// NewObserver creates an Observer reporting to ctrl.
func NewObserver(ctrl Transitioner, idleDelay time.Duration) *Observer {
	if idleDelay <= 0 {
		idleDelay = DefaultIdleDelay
	}
	return &Observer{
		tasks:     make(map[string]*taskState),
		ctrl:      ctrl,
		idleDelay: idleDelay,
	}
}

// Observe feeds one activity signal. It returns an error only for malformed
// events; stale or ignored signals are absorbed.
func (o *Observer) Observe(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	st := o.state(ev.TaskID)

	st.mu.Lock()
	defer st.mu.Unlock()

	s, known := st.sessions[ev.SessionID]
	if !known {
		s = &session{parent: ev.ParentSessionID}
		if ev.ParentSessionID == "" && st.main == "" {
			s.main = true
			st.main = ev.SessionID
		}
		st.sessions[ev.SessionID] = s

		slog.Debug("activity session registered",
			"task_id", ev.TaskID,
			"session_id", ev.SessionID,
			"parent_session_id", ev.ParentSessionID,
			"main", s.main)
	}

	if !s.main {
		return nil
	}

	st.version++

	if ev.Kind == KindIdle {
		v := st.version
		if st.idle != nil {
			st.idle.Stop()
		}
		st.idle = time.AfterFunc(o.idleDelay, func() { o.confirmIdle(ev.TaskID, st, v) })
		return nil
	}

	if st.idle != nil {
		st.idle.Stop()
		st.idle = nil
	}
	o.request(ev.TaskID, task.StatusInProgress)
	return nil
}

// confirmIdle runs when an idle timer fires. It acts only if no main-session
// signal arrived since the timer was armed and the task is still tracked.
func (o *Observer) confirmIdle(taskID string, st *taskState, v uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	o.mu.Lock()
	current := o.tasks[taskID]
	o.mu.Unlock()

	if current != st || st.version != v {
		slog.Debug("stale idle timer discarded", "task_id", taskID, "version", v)
		return
	}
	st.idle = nil

	o.request(taskID, task.StatusInReview)
}

// request forwards a transition; called with st.mu held so requests for one
// task reach the Controller in decision order.
func (o *Observer) request(taskID string, target task.Status) {
	res, err := o.ctrl.Transition(taskID, target)
	if err != nil {
		slog.Warn("status transition failed",
			"task_id", taskID,
			"target", target,
			"error", err)
		return
	}
	if !res.Applied && res.From.IsTerminal() {
		o.Forget(taskID)
	}
}

func (o *Observer) state(taskID string) *taskState {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.tasks[taskID]
	if !ok {
		st = &taskState{sessions: make(map[string]*session)}
		o.tasks[taskID] = st
	}
	return st
}

// Forget discards all session state for a task. Pending idle timers become
// no-ops. It never waits on a task's own lock, so it is safe to call from a
// Controller callback.
func (o *Observer) Forget(taskID string) {
	o.mu.Lock()
	_, ok := o.tasks[taskID]
	delete(o.tasks, taskID)
	o.mu.Unlock()

	if ok {
		slog.Debug("activity state discarded", "task_id", taskID)
	}
}

// Snapshot returns the activity state of a task, if tracked.
func (o *Observer) Snapshot(taskID string) (Snapshot, bool) {
	o.mu.Lock()
	st, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		MainSession: st.main,
		Sessions:    len(st.sessions),
		Version:     st.version,
		IdlePending: st.idle != nil,
	}
	for _, s := range st.sessions {
		if s.parent != "" {
			snap.Subagents++
		}
	}
	return snap, true
}

// Tracked returns the number of tasks with live activity state.
func (o *Observer) Tracked() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// Close stops every pending idle timer and drops all state.
func (o *Observer) Close() {
	o.mu.Lock()
	tasks := o.tasks
	o.tasks = make(map[string]*taskState)
	o.mu.Unlock()

	for _, st := range tasks {
		st.mu.Lock()
		if st.idle != nil {
			st.idle.Stop()
			st.idle = nil
		}
		st.mu.Unlock()
	}
}
