package watch

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/btouchard/beacon/internal/task"
)

// Alerter performs the user-visible side effect of a notification. sound
// reports whether this context is allowed to make noise.
type Alerter interface {
	Alert(ctx context.Context, n task.Notification, sound bool) error
}

// Bell rings the terminal bell.
type Bell struct {
	Out io.Writer
}

func (b Bell) Alert(_ context.Context, _ task.Notification, sound bool) error {
	if !sound {
		return nil
	}
	_, err := io.WriteString(b.Out, "\a")
	return err
}

type runFunc func(ctx context.Context, name string, args ...string) error

// Desktop shows a native toast: osascript on macOS, notify-send elsewhere.
type Desktop struct {
	goos string
	run  runFunc
}

func NewDesktop() *Desktop {
	return &Desktop{goos: runtime.GOOS, run: runCommand}
}

func (d *Desktop) Alert(ctx context.Context, n task.Notification, sound bool) error {
	if d.goos == "darwin" {
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		if sound {
			script += ` sound name "default"`
		}
		return d.run(ctx, "osascript", "-e", script)
	}

	args := []string{"--app-name=beacon"}
	if !sound {
		args = append(args, "--hint=boolean:suppress-sound:true")
	}
	args = append(args, n.Title, n.Body)
	return d.run(ctx, "notify-send", args...)
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Multi runs several alerters, returning the first error.
type Multi []Alerter

func (m Multi) Alert(ctx context.Context, n task.Notification, sound bool) error {
	var first error
	for _, a := range m {
		if err := a.Alert(ctx, n, sound); err != nil && first == nil {
			first = err
		}
	}
	return first
}
