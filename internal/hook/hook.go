// Package hook turns agent runtime hook payloads into activity signals and
// forwards them to the server.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btouchard/beacon/internal/activity"
)

// Payload is the JSON document an agent runtime writes to a hook's stdin.
// Unknown fields are ignored.
type Payload struct {
	SessionID       string `json:"session_id"`
	HookEventName   string `json:"hook_event_name"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
}

var kinds = map[string]activity.Kind{
	"SessionStart":     activity.KindSessionCreated,
	"UserPromptSubmit": activity.KindUserMessage,
	"PreToolUse":       activity.KindToolExecuting,
	"PostToolUse":      activity.KindBusy,
	"Notification":     activity.KindAgentMessage,
	"Stop":             activity.KindIdle,
	"SubagentStop":     activity.KindIdle,
}

// ReadPayload decodes a hook payload.
func ReadPayload(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decoding hook payload: %w", err)
	}
	if p.SessionID == "" {
		return Payload{}, fmt.Errorf("hook payload has no session_id")
	}
	return p, nil
}

// Map converts a payload to an activity event for taskID. ok is false for
// hook events that carry no activity meaning.
func Map(taskID string, p Payload) (activity.Event, bool) {
	kind, ok := kinds[p.HookEventName]
	if !ok {
		return activity.Event{}, false
	}

	ev := activity.Event{
		TaskID:          taskID,
		SessionID:       p.SessionID,
		ParentSessionID: p.ParentSessionID,
		Kind:            kind,
	}

	// SubagentStop is reported under the parent's session id.
	if p.HookEventName == "SubagentStop" && ev.ParentSessionID == "" {
		sub := p.AgentID
		if sub == "" {
			sub = "subagent"
		}
		ev.ParentSessionID = p.SessionID
		ev.SessionID = p.SessionID + "/" + sub
	}
	return ev, true
}

// Poster sends activity events to a running server.
type Poster struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewPoster(baseURL, token string) *Poster {
	return &Poster{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Post delivers ev to the activity endpoint.
func (p *Poster) Post(ctx context.Context, ev activity.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/activity", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
