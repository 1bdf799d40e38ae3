// Package watch implements a terminal client that follows task events and
// alerts on notifications, coordinating with other watchers on the machine
// so each notification is announced once.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/btouchard/beacon/internal/broadcast"
	"github.com/btouchard/beacon/internal/task"
	"github.com/btouchard/beacon/internal/transport"
)

// Claimer elects one context per notification.
type Claimer interface {
	TryClaim(notificationID string) (bool, error)
}

// Gate rate-limits sounds across contexts.
type Gate interface {
	Allow() (bool, error)
}

// Options configures a Watcher.
type Options struct {
	URL     string // ws:// or wss:// endpoint
	Token   string
	TaskID  string // attach to this task's activity stream when set
	Claimer Claimer
	Gate    Gate
	Alerter Alerter
	Out     io.Writer
}

// Watcher is one client context.
type Watcher struct {
	opts  Options
	style styles
	wg   sync.WaitGroup
	mu   sync.Mutex // serializes writes to Out
}

func New(opts Options) *Watcher {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Watcher{opts: opts, style: newStyles(opts.Out)}
}

// Run connects and processes messages until ctx is cancelled or the
// connection drops.
func (w *Watcher) Run(ctx context.Context) error {
	hdr := http.Header{}
	if w.opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+w.opts.Token)
	}

	ws, _, err := websocket.Dial(ctx, w.opts.URL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", w.opts.URL, err)
	}
	defer ws.CloseNow()
	defer w.wg.Wait()

	if w.opts.TaskID != "" {
		req := transport.Request{Op: transport.OpAttach, Scope: w.opts.TaskID}
		if err := wsjson.Write(ctx, ws, req); err != nil {
			return fmt.Errorf("attaching to %s: %w", w.opts.TaskID, err)
		}
	}

	for {
		var m broadcast.Message
		if err := wsjson.Read(ctx, ws, &m); err != nil {
			if ctx.Err() != nil {
				_ = ws.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return fmt.Errorf("reading from server: %w", err)
		}
		w.handle(ctx, m)
	}
}

func (w *Watcher) handle(ctx context.Context, m broadcast.Message) {
	switch m.Type {
	case broadcast.TypeTaskStatusChanged:
		w.printf("%s  %s %s -> %s\n",
			w.style.time.Render(stamp(m.At)),
			w.style.taskID.Render(m.TaskID),
			w.style.statusText(m.From),
			w.style.statusText(m.To))
	case broadcast.TypeActivity:
		if m.Activity != nil {
			w.printf("%s  %s %s\n",
				w.style.time.Render(stamp(nil)),
				w.style.taskID.Render(m.TaskID),
				w.style.dim.Render(fmt.Sprintf("%s (%s)", m.Activity.Kind, m.Activity.SessionID)))
		}
	case broadcast.TypeNotification:
		if m.Notification == nil {
			return
		}
		n := *m.Notification
		// Claiming blocks for the settle window; keep reading meanwhile.
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.announce(ctx, n)
		}()
	case broadcast.TypeError:
		slog.Warn("server rejected request", "error", m.Error, "scope", m.Scope)
	}
}

// announce runs the side effect only if this context wins the claim.
func (w *Watcher) announce(ctx context.Context, n task.Notification) {
	if w.opts.Claimer != nil {
		won, err := w.opts.Claimer.TryClaim(n.ID)
		if err != nil {
			slog.Warn("notification claim failed", "notification_id", n.ID, "error", err)
			return
		}
		if !won {
			slog.Debug("notification handled by another watcher", "notification_id", n.ID)
			return
		}
	}

	sound := true
	if w.opts.Gate != nil {
		ok, err := w.opts.Gate.Allow()
		if err != nil {
			slog.Debug("sound gate failed", "error", err)
		}
		sound = ok
	}

	w.printf("%s  %s %s %s\n",
		w.style.time.Render(stamp(nil)),
		w.style.taskID.Render(n.TaskID),
		w.style.title.Render(n.Title+":"),
		n.Body)

	if w.opts.Alerter != nil {
		if err := w.opts.Alerter.Alert(ctx, n, sound); err != nil {
			slog.Warn("alert failed", "notification_id", n.ID, "error", err)
		}
	}
}

func (w *Watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.opts.Out, format, args...)
}

func stamp(at *time.Time) string {
	t := time.Now()
	if at != nil {
		t = *at
	}
	return t.Local().Format("15:04:05")
}
