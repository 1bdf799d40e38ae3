// Package reconcile brings task status in line with external review state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/btouchard/beacon/internal/review"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

const DefaultInterval = 60 * time.Second

// Lister returns the tasks a sweep should look at.
type Lister interface {
	ListTasks(f store.TaskFilter) ([]store.TaskRecord, error)
}

// ReviewChecker queries the closure state of a review reference.
type ReviewChecker interface {
	ClosureState(ctx context.Context, ref string) (review.State, error)
}

// Transitioner applies status changes.
type Transitioner interface {
	Transition(taskID string, target task.Status) (task.Result, error)
}

// SweepResult summarises one pass over the reviewable tasks.
type SweepResult struct {
	Checked int `json:"checked"`
	Merged  int `json:"merged"`
	Failed  int `json:"failed"`
}

// Poller periodically marks tasks DONE once their review has merged.
type Poller struct {
	tasks        Lister
	checker      ReviewChecker
	ctrl         Transitioner
	interval     time.Duration
	queryTimeout time.Duration

	group singleflight.Group
}

func NewPoller(tasks Lister, checker ReviewChecker, ctrl Transitioner, interval, queryTimeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		tasks:        tasks,
		checker:      checker,
		ctrl:         ctrl,
		interval:     interval,
		queryTimeout: queryTimeout,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("reconcile poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile poller stopped")
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil {
				slog.Warn("reconcile sweep failed", "error", err)
			}
		}
	}
}

// Sweep checks every non-terminal task that has a review reference. A sweep
// already in flight is joined rather than duplicated. Per-task lookup
// failures are logged and counted; only a failure to list tasks is returned.
func (p *Poller) Sweep(ctx context.Context) (SweepResult, error) {
	v, err, shared := p.group.Do("sweep", func() (any, error) {
		return p.sweep(ctx)
	})
	if shared {
		slog.Debug("joined in-flight reconcile sweep")
	}
	if err != nil {
		return SweepResult{}, err
	}
	return v.(SweepResult), nil
}

func (p *Poller) sweep(ctx context.Context) (SweepResult, error) {
	recs, err := p.tasks.ListTasks(store.TaskFilter{
		ExcludeStatus: task.TerminalStatuses(),
		WithReviewRef: true,
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing reviewable tasks: %w", err)
	}

	var res SweepResult
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		res.Checked++

		merged, err := p.check(ctx, rec)
		if err != nil {
			res.Failed++
			slog.Warn("review lookup failed",
				"task_id", rec.ID,
				"review_ref", rec.ReviewRef,
				"error", err)
			continue
		}
		if !merged {
			continue
		}

		tr, err := p.ctrl.Transition(rec.ID, task.StatusDone)
		if err != nil {
			res.Failed++
			slog.Warn("marking merged task done failed", "task_id", rec.ID, "error", err)
			continue
		}
		if tr.Applied {
			res.Merged++
		}
	}

	slog.Debug("reconcile sweep complete",
		"checked", res.Checked,
		"merged", res.Merged,
		"failed", res.Failed)
	return res, nil
}

func (p *Poller) check(ctx context.Context, rec store.TaskRecord) (bool, error) {
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}
	st, err := p.checker.ClosureState(ctx, rec.ReviewRef)
	if err != nil {
		return false, err
	}
	return st.Merged, nil
}
