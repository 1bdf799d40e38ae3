// Package review queries pull request state through the GitHub CLI.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// State is the closure state of a review reference.
type State struct {
	Merged bool
	State  string // OPEN, CLOSED or MERGED
}

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// GHChecker resolves review references with `gh pr view`.
type GHChecker struct {
	bin   string
	token string
	run   Runner
}

// NewGHChecker creates a checker using the gh binary at bin. A non-empty
// token is passed to gh as GH_TOKEN.
func NewGHChecker(bin, token string) *GHChecker {
	if bin == "" {
		bin = "gh"
	}
	return &GHChecker{bin: bin, token: token, run: execRunner}
}

type prView struct {
	State    string `json:"state"`
	MergedAt string `json:"mergedAt"`
}

// ClosureState reports whether the pull request behind ref has been merged.
func (c *GHChecker) ClosureState(ctx context.Context, ref string) (State, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return State{}, err
	}

	var env []string
	if c.token != "" {
		env = append(env, "GH_TOKEN="+c.token)
	}

	out, err := c.run(ctx, env, c.bin,
		"pr", "view", strconv.Itoa(r.Number),
		"--repo", r.Repo,
		"--json", "state,mergedAt")
	if err != nil {
		return State{}, fmt.Errorf("querying %s: %w", r, err)
	}

	var pv prView
	if err := json.Unmarshal(out, &pv); err != nil {
		return State{}, fmt.Errorf("decoding gh output for %s: %w", r, err)
	}

	st := strings.ToUpper(pv.State)
	return State{
		Merged: st == "MERGED" || pv.MergedAt != "",
		State:  st,
	}, nil
}

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := errors.AsType[*exec.ExitError](err); ok {
			return nil, fmt.Errorf("%s exited with code %d: %s",
				name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}
