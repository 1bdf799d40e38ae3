// Package broadcast fans task events out to connected clients.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/btouchard/beacon/internal/task"
)

const DefaultQueueSize = 1024

type job struct {
	scope string // empty means every client
	msg   Message
}

// Broadcaster serializes messages once and delivers them from a single loop,
// so messages submitted in order reach each connection in that order.
type Broadcaster struct {
	reg   *Registry
	queue chan job

	stopOnce sync.Once
	stopped  chan struct{}
}

func NewBroadcaster(reg *Registry, queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		reg:     reg,
		queue:   make(chan job, queueSize),
		stopped: make(chan struct{}),
	}
}

// Registry returns the client registry the broadcaster delivers to.
func (b *Broadcaster) Registry() *Registry {
	return b.reg
}

// Run delivers queued messages until ctx is cancelled. Messages still queued
// at that point are delivered before Run returns.
func (b *Broadcaster) Run(ctx context.Context) {
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case j := <-b.queue:
			b.deliver(j)
		}
	}
}

func (b *Broadcaster) drain() {
	for {
		select {
		case j := <-b.queue:
			b.deliver(j)
		default:
			return
		}
	}
}

func (b *Broadcaster) stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
}

// BroadcastAll queues msg for every registered client.
func (b *Broadcaster) BroadcastAll(msg Message) {
	b.enqueue(job{msg: msg})
}

// BroadcastScoped queues msg for the clients attached to scope.
func (b *Broadcaster) BroadcastScoped(scope string, msg Message) {
	if scope == "" {
		return
	}
	if msg.Scope == "" {
		msg.Scope = scope
	}
	b.enqueue(job{scope: scope, msg: msg})
}

// Notify implements notify.Notifier. Status changes and notifications go to
// every client regardless of scope.
func (b *Broadcaster) Notify(e task.Event) {
	msg, ok := FromTaskEvent(e)
	if !ok {
		return
	}
	b.BroadcastAll(msg)
}

func (b *Broadcaster) enqueue(j job) {
	select {
	case b.queue <- j:
	case <-b.stopped:
		slog.Debug("broadcaster stopped, message dropped", "type", j.msg.Type, "task_id", j.msg.TaskID)
	}
}

func (b *Broadcaster) deliver(j job) {
	data, err := json.Marshal(j.msg)
	if err != nil {
		slog.Error("failed to encode broadcast message", "type", j.msg.Type, "error", err)
		return
	}

	var targets []Client
	if j.scope == "" {
		targets = b.reg.Clients()
	} else {
		targets = b.reg.Attached(j.scope)
	}

	for _, c := range targets {
		if err := c.Send(data); err != nil {
			slog.Info("dropping client after failed send",
				"client_id", c.ID(),
				"type", j.msg.Type,
				"error", err)
			if b.reg.Unregister(c.ID()) {
				c.Close()
			}
		}
	}
}
