package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/task"
)

type fakeClient struct {
	id string

	mu     sync.Mutex
	msgs   []Message
	fail   bool
	closed bool
}

func newFakeClient(id string) *fakeClient { return &fakeClient{id: id} }

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection reset")
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeClient) received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startBroadcaster(t *testing.T) (*Broadcaster, *Registry) {
	t.Helper()
	reg := NewRegistry()
	b := NewBroadcaster(reg, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return b, reg
}

func statusEvent(taskID string, from, to task.Status) task.Event {
	return task.Event{Type: task.EventStatusChanged, TaskID: taskID, From: from, To: to, At: time.Now()}
}

func TestRegistry_AttachDetach(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, b := newFakeClient("a"), newFakeClient("b")
	reg.Register(a)
	reg.Register(b)

	require.NoError(t, reg.Attach("a", "t1"))
	require.NoError(t, reg.Attach("b", "t1"))
	require.NoError(t, reg.Attach("b", "t2"))
	require.Error(t, reg.Attach("ghost", "t1"))
	require.Error(t, reg.Attach("a", ""))

	assert.Len(t, reg.Attached("t1"), 2)
	assert.ElementsMatch(t, []string{"t1", "t2"}, reg.Scopes("b"))

	reg.Detach("a", "t1")
	assert.Len(t, reg.Attached("t1"), 1)
	reg.Detach("a", "never")

	assert.True(t, reg.Unregister("b"))
	assert.False(t, reg.Unregister("b"))
	assert.Empty(t, reg.Attached("t1"))
	assert.Empty(t, reg.Attached("t2"))
	assert.Equal(t, 1, reg.Len())
}

func TestBroadcaster_StatusEventsReachEveryClient(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)
	a, c := newFakeClient("a"), newFakeClient("c")
	reg.Register(a)
	reg.Register(c)
	require.NoError(t, reg.Attach("a", "other-task"))

	b.Notify(statusEvent("t1", task.StatusInProgress, task.StatusInReview))

	for _, cl := range []*fakeClient{a, c} {
		require.Eventually(t, func() bool { return len(cl.received()) == 1 }, time.Second, 5*time.Millisecond)
		m := cl.received()[0]
		assert.Equal(t, TypeTaskStatusChanged, m.Type)
		assert.Equal(t, task.StatusInReview, m.To)
	}
}

func TestBroadcaster_ScopedOnlyReachesAttached(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)
	in, out := newFakeClient("in"), newFakeClient("out")
	reg.Register(in)
	reg.Register(out)
	require.NoError(t, reg.Attach("in", "t1"))

	b.BroadcastScoped("t1", Message{Type: TypeActivity, TaskID: "t1"})
	b.BroadcastAll(Message{Type: "marker"})

	require.Eventually(t, func() bool { return len(out.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "marker", out.received()[0].Type)

	require.Eventually(t, func() bool { return len(in.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, TypeActivity, in.received()[0].Type)
	assert.Equal(t, "t1", in.received()[0].Scope)
}

func TestBroadcaster_PreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)
	c := newFakeClient("c")
	reg.Register(c)

	const n = 200
	for i := range n {
		b.BroadcastAll(Message{Type: TypeTaskStatusChanged, TaskID: fmt.Sprintf("%03d", i)})
	}

	require.Eventually(t, func() bool { return len(c.received()) == n }, 2*time.Second, 5*time.Millisecond)
	for i, m := range c.received() {
		assert.Equal(t, fmt.Sprintf("%03d", i), m.TaskID)
	}
}

func TestBroadcaster_FailedSendUnregistersClient(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)
	dead, live := newFakeClient("dead"), newFakeClient("live")
	dead.fail = true
	reg.Register(dead)
	reg.Register(live)

	assert.NotPanics(t, func() {
		b.Notify(statusEvent("t1", task.StatusInProgress, task.StatusInReview))
	})

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, dead.isClosed())
	require.Eventually(t, func() bool { return len(live.received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_ConcurrentRegisterDuringBroadcast(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			reg.Register(newFakeClient(id))
			_ = reg.Attach(id, "t1")
			reg.Unregister(id)
		}()
		go func() {
			defer wg.Done()
			b.BroadcastAll(Message{Type: TypeTaskStatusChanged})
			b.BroadcastScoped("t1", Message{Type: TypeActivity})
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
}

func TestBroadcaster_NotificationCarriesID(t *testing.T) {
	t.Parallel()

	b, reg := startBroadcaster(t)
	c := newFakeClient("c")
	reg.Register(c)

	at := time.Now()
	b.Notify(task.Event{
		Type:   task.EventNotification,
		TaskID: "t1",
		To:     task.StatusInReview,
		At:     at,
		Notification: &task.Notification{
			ID:     task.NotificationID("t1", task.StatusInReview, at),
			TaskID: "t1",
			Title:  "Ready for review",
		},
	})

	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, 5*time.Millisecond)
	m := c.received()[0]
	assert.Equal(t, TypeNotification, m.Type)
	require.NotNil(t, m.Notification)
	assert.Equal(t, task.NotificationID("t1", task.StatusInReview, at), m.Notification.ID)
}

func TestBroadcaster_EnqueueAfterStopDoesNotBlock(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	b := NewBroadcaster(reg, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	done := make(chan struct{})
	go func() {
		b.BroadcastAll(Message{Type: "a"})
		b.BroadcastAll(Message{Type: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked after broadcaster stopped")
	}
}
