package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/store"
)

// fakeStore is an in-memory Store that counts status writes.
type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]*store.TaskRecord
	writes  int
	events  []store.TaskEvent
	saveErr error
}

func newFakeStore(recs ...*store.TaskRecord) *fakeStore {
	fs := &fakeStore{tasks: make(map[string]*store.TaskRecord)}
	for _, r := range recs {
		fs.tasks[r.ID] = r
	}
	return fs
}

func (f *fakeStore) GetTask(id string) (*store.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpdateTaskStatus(id, status string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	r, ok := f.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, store.ErrNotFound)
	}
	r.Status = status
	r.StatusUpdatedAt = at
	f.writes++
	return nil
}

func (f *fakeStore) AddEvent(e *store.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeStore) status(id string) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status(f.tasks[id].Status)
}

func (f *fakeStore) delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
}

// eventLog collects emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func record(id string, st Status) *store.TaskRecord {
	return &store.TaskRecord{ID: id, Title: "Task " + id, Status: string(st), CreatedAt: time.Now()}
}

func newTestController(fs *fakeStore) (*Controller, *eventLog) {
	c := NewController(fs)
	log := &eventLog{}
	c.SetNotifyFunc(log.record)
	return c, log
}

func TestController_Transition_AppliesAndEmits(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInProgress))
	c, log := newTestController(fs)

	res, err := c.Transition("t1", StatusInReview)
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, StatusInProgress, res.From)
	assert.Equal(t, StatusInReview, res.To)
	assert.Equal(t, StatusInReview, fs.status("t1"))

	changed := log.ofType(EventStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, StatusInProgress, changed[0].From)

	notes := log.ofType(EventNotification)
	require.Len(t, notes, 1)
	n := notes[0].Notification
	require.NotNil(t, n)
	assert.Equal(t, NotificationID("t1", StatusInReview, notes[0].At), n.ID)
	assert.Equal(t, "t1", n.TaskID)
	assert.Equal(t, "Ready for review", n.Title)

	require.Len(t, fs.events, 1)
	assert.Equal(t, "IN_REVIEW", fs.events[0].ToStatus)
}

func TestController_Transition_StatusChangeComesBeforeNotification(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInReview))
	c, log := newTestController(fs)

	_, err := c.Transition("t1", StatusDone)
	require.NoError(t, err)

	require.Len(t, log.events, 2)
	assert.Equal(t, EventStatusChanged, log.events[0].Type)
	assert.Equal(t, EventNotification, log.events[1].Type)
}

func TestController_Transition_IsIdempotent(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInProgress))
	c, log := newTestController(fs)

	first, err := c.Transition("t1", StatusInReview)
	require.NoError(t, err)
	second, err := c.Transition("t1", StatusInReview)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, 1, fs.writes, "exactly one persisted write")
	assert.Len(t, log.ofType(EventStatusChanged), 1, "exactly one broadcast")
}

func TestController_Transition_NoPolicyNotificationForInProgress(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInReview))
	c, log := newTestController(fs)

	res, err := c.Transition("t1", StatusInProgress)
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Len(t, log.ofType(EventStatusChanged), 1)
	assert.Empty(t, log.ofType(EventNotification))
}

func TestController_Transition_TerminalIsNoOp(t *testing.T) {
	t.Parallel()

	for _, terminal := range []Status{StatusDone, StatusCanceled} {
		fs := newFakeStore(record("t1", terminal))
		c, log := newTestController(fs)

		res, err := c.Transition("t1", StatusInProgress)
		require.NoError(t, err)

		assert.False(t, res.Applied, "no transition out of %s", terminal)
		assert.Equal(t, terminal, fs.status("t1"))
		assert.Empty(t, log.events)
		assert.Zero(t, fs.writes)
	}
}

func TestController_Transition_UnknownTaskIsSilentNoOp(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	c, log := newTestController(fs)

	res, err := c.Transition("ghost", StatusInReview)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, log.events)
}

func TestController_Transition_RejectsInvalidTarget(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(newFakeStore(record("t1", StatusInProgress)))

	_, err := c.Transition("t1", Status("running"))
	require.Error(t, err)
}

func TestController_Transition_SaveErrorIsReturnedWithoutEmit(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInProgress))
	fs.saveErr = errors.New("disk full")
	c, log := newTestController(fs)

	res, err := c.Transition("t1", StatusInReview)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, res.Applied)
	assert.Empty(t, log.events)
}

func TestController_Transition_DeletedMidFlightIsAbsorbed(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInProgress))
	c, log := newTestController(fs)
	fs.delete("t1")

	res, err := c.Transition("t1", StatusDone)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, log.events)
}

func TestController_Transition_ConcurrentCallersApplyOnce(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInProgress))
	c, log := newTestController(fs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Transition("t1", StatusDone)
			assert.NoError(t, err)
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, fs.writes)
	assert.Len(t, log.ofType(EventStatusChanged), 1)
}

func TestController_Cancel_FromNonTerminal(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInReview))
	c, log := newTestController(fs)

	res, err := c.Cancel("t1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, StatusCanceled, fs.status("t1"))
	assert.Len(t, log.ofType(EventStatusChanged), 1)
	assert.Empty(t, log.ofType(EventNotification), "cancellation is not announced")
}

func TestController_Cancel_DoneStaysDone(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusDone))
	c, _ := newTestController(fs)

	res, err := c.Cancel("t1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, StatusDone, fs.status("t1"))
}

func TestController_SetPolicy_Overrides(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(record("t1", StatusInReview))
	c, log := newTestController(fs)
	c.SetPolicy(func(Task, Status, Status) (string, string, bool) { return "", "", false })

	_, err := c.Transition("t1", StatusDone)
	require.NoError(t, err)
	assert.Empty(t, log.ofType(EventNotification))
}
