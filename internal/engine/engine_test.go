package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/broadcast"
	"github.com/btouchard/beacon/internal/notify"
	"github.com/btouchard/beacon/internal/reconcile"
	"github.com/btouchard/beacon/internal/review"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

const idleDelay = 60 * time.Millisecond

type recClient struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (c *recClient) ID() string { return "rec" }
func (c *recClient) Close()     {}

func (c *recClient) Send(data []byte) error {
	var m broadcast.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recClient) ofType(typ string) []broadcast.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []broadcast.Message
	for _, m := range c.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type stubChecker struct {
	mu     sync.Mutex
	merged map[string]bool
}

func (s *stubChecker) ClosureState(_ context.Context, ref string) (review.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return review.State{Merged: s.merged[ref]}, nil
}

func (s *stubChecker) merge(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merged[ref] = true
}

type fixture struct {
	engine  *Engine
	store   *store.SQLiteStore
	client  *recClient
	reg     *broadcast.Registry
	checker *stubChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	ctrl := task.NewController(s)
	obs := activity.NewObserver(ctrl, idleDelay)
	checker := &stubChecker{merged: map[string]bool{}}
	poller := reconcile.NewPoller(s, checker, ctrl, time.Hour, time.Second)

	reg := broadcast.NewRegistry()
	bc := broadcast.NewBroadcaster(reg, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go bc.Run(ctx)

	e := New(Deps{Store: s, Controller: ctrl, Observer: obs, Poller: poller, Broadcaster: bc})
	ctrl.SetNotifyFunc(notify.NewHub(bc, e).Notify)

	client := &recClient{}
	reg.Register(client)

	t.Cleanup(func() {
		obs.Close()
		cancel()
		_ = s.Close()
	})
	return &fixture{engine: e, store: s, client: client, reg: reg, checker: checker}
}

func (f *fixture) status(t *testing.T, id string) task.Status {
	t.Helper()
	d, err := f.engine.Task(id)
	require.NoError(t, err)
	return d.Task.Status
}

func TestEngine_EndToEnd_IdleReviewResumeMerge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := f.engine

	tk, err := e.CreateTask("T", "Fix login", "acme/api#42")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, tk.Status)

	ev := func(kind activity.Kind) activity.Event {
		return activity.Event{TaskID: "T", SessionID: "main", Kind: kind}
	}

	require.NoError(t, e.ReportActivity(ev(activity.KindSessionCreated)))
	require.NoError(t, e.ReportActivity(ev(activity.KindIdle)))

	require.Eventually(t, func() bool { return f.status(t, "T") == task.StatusInReview }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.client.ofType(broadcast.TypeNotification)) == 1 }, time.Second, 5*time.Millisecond)

	changes := f.client.ofType(broadcast.TypeTaskStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, task.StatusInReview, changes[0].To)

	n := f.client.ofType(broadcast.TypeNotification)[0].Notification
	require.NotNil(t, n)
	assert.Equal(t, task.NotificationID("T", task.StatusInReview, *changes[0].At), n.ID)

	require.NoError(t, e.ReportActivity(ev(activity.KindUserMessage)))
	assert.Equal(t, task.StatusInProgress, f.status(t, "T"), "resume is immediate")

	// An idle is pending when the review merges; the merge wins.
	require.NoError(t, e.ReportActivity(ev(activity.KindIdle)))
	f.checker.merge("acme/api#42")
	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, task.StatusDone, f.status(t, "T"))

	time.Sleep(3 * idleDelay)
	assert.Equal(t, task.StatusDone, f.status(t, "T"), "stale idle cannot leave DONE")
	assert.Equal(t, 0, e.Tracked(), "activity state dropped on terminal status")
}

func TestEngine_ReportActivity_UnknownTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.engine.ReportActivity(activity.Event{TaskID: "ghost", SessionID: "s", Kind: activity.KindBusy})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.engine.Tracked())
}

func TestEngine_ReportActivity_TerminalTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("t1", "", "")
	require.NoError(t, err)
	_, err = f.engine.Cancel("t1")
	require.NoError(t, err)

	err = f.engine.ReportActivity(activity.Event{TaskID: "t1", SessionID: "s", Kind: activity.KindUserMessage})
	require.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, task.StatusCanceled, f.status(t, "t1"))
}

func TestEngine_ReportActivity_RejectsMalformed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.engine.ReportActivity(activity.Event{TaskID: "t1", Kind: activity.KindBusy})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestEngine_ReportActivity_RelaysToAttachedClients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("t1", "", "")
	require.NoError(t, err)
	require.NoError(t, f.reg.Attach("rec", "t1"))

	require.NoError(t, f.engine.ReportActivity(activity.Event{TaskID: "t1", SessionID: "s", Kind: activity.KindToolExecuting}))

	require.Eventually(t, func() bool { return len(f.client.ofType(broadcast.TypeActivity)) == 1 }, time.Second, 5*time.Millisecond)
	m := f.client.ofType(broadcast.TypeActivity)[0]
	require.NotNil(t, m.Activity)
	assert.Equal(t, activity.KindToolExecuting, m.Activity.Kind)
}

func TestEngine_CreateTask_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("bad id!", "", "")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = f.engine.CreateTask("", "", "not-a-ref")
	require.ErrorIs(t, err, ErrInvalid)

	tk, err := f.engine.CreateTask("", "generated", "")
	require.NoError(t, err)
	assert.Regexp(t, `^task-[0-9a-f]{8}$`, tk.ID)

	_, err = f.engine.CreateTask("dup", "", "")
	require.NoError(t, err)
	_, err = f.engine.CreateTask("dup", "", "")
	require.ErrorIs(t, err, ErrExists)
}

func TestEngine_Task_IncludesActivityAndEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("t1", "title", "")
	require.NoError(t, err)
	require.NoError(t, f.engine.ReportActivity(activity.Event{TaskID: "t1", SessionID: "main", Kind: activity.KindBusy}))
	require.NoError(t, f.engine.ReportActivity(activity.Event{TaskID: "t1", SessionID: "sub", ParentSessionID: "main", Kind: activity.KindBusy}))

	d, err := f.engine.Task("t1")
	require.NoError(t, err)
	require.NotNil(t, d.Activity)
	assert.Equal(t, "main", d.Activity.MainSession)
	assert.Equal(t, 1, d.Activity.Subagents)
	require.NotEmpty(t, d.Events)
	assert.Equal(t, "task.created", d.Events[len(d.Events)-1].Type)
}

func TestEngine_SetReviewRefAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("t1", "", "")
	require.NoError(t, err)
	require.ErrorIs(t, f.engine.SetReviewRef("t1", "nope"), ErrInvalid)
	require.ErrorIs(t, f.engine.SetReviewRef("ghost", "a/b#1"), store.ErrNotFound)
	require.NoError(t, f.engine.SetReviewRef("t1", "https://github.com/a/b/pull/1"))

	tasks, err := f.engine.Tasks(store.TaskFilter{Status: "IN_PROGRESS"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://github.com/a/b/pull/1", tasks[0].ReviewRef)

	_, err = f.engine.Tasks(store.TaskFilter{Status: "running"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestEngine_DeleteTask_PendingIdleIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.CreateTask("t1", "", "")
	require.NoError(t, err)
	require.NoError(t, f.engine.ReportActivity(activity.Event{TaskID: "t1", SessionID: "main", Kind: activity.KindIdle}))
	require.NoError(t, f.engine.DeleteTask("t1"))

	time.Sleep(3 * idleDelay)
	assert.Empty(t, f.client.ofType(broadcast.TypeTaskStatusChanged))
	require.ErrorIs(t, f.engine.DeleteTask("t1"), store.ErrNotFound)
}
