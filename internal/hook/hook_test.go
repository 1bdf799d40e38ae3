package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/activity"
)

func TestMap_HookEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hook string
		want activity.Kind
	}{
		{"SessionStart", activity.KindSessionCreated},
		{"UserPromptSubmit", activity.KindUserMessage},
		{"PreToolUse", activity.KindToolExecuting},
		{"PostToolUse", activity.KindBusy},
		{"Notification", activity.KindAgentMessage},
		{"Stop", activity.KindIdle},
	}

	for _, tt := range tests {
		t.Run(tt.hook, func(t *testing.T) {
			t.Parallel()
			ev, ok := Map("t1", Payload{SessionID: "s1", HookEventName: tt.hook})
			require.True(t, ok)
			assert.Equal(t, tt.want, ev.Kind)
			assert.Equal(t, "s1", ev.SessionID)
			assert.Empty(t, ev.ParentSessionID)
			assert.NoError(t, ev.Validate())
		})
	}
}

func TestMap_SubagentStopBecomesChildSession(t *testing.T) {
	t.Parallel()

	ev, ok := Map("t1", Payload{SessionID: "s1", HookEventName: "SubagentStop", AgentID: "explore"})
	require.True(t, ok)
	assert.Equal(t, activity.KindIdle, ev.Kind)
	assert.Equal(t, "s1", ev.ParentSessionID)
	assert.Equal(t, "s1/explore", ev.SessionID)
}

func TestMap_UnknownHookIsIgnored(t *testing.T) {
	t.Parallel()

	_, ok := Map("t1", Payload{SessionID: "s1", HookEventName: "PreCompact"})
	assert.False(t, ok)
}

func TestReadPayload(t *testing.T) {
	t.Parallel()

	p, err := ReadPayload(strings.NewReader(`{"session_id":"abc","hook_event_name":"Stop","cwd":"/tmp"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", p.SessionID)
	assert.Equal(t, "Stop", p.HookEventName)

	_, err = ReadPayload(strings.NewReader(`{"hook_event_name":"Stop"}`))
	require.Error(t, err)

	_, err = ReadPayload(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestPoster_Post(t *testing.T) {
	t.Parallel()

	var got activity.Event
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/activity", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPoster(srv.URL+"/", "secret")
	ev := activity.Event{TaskID: "t1", SessionID: "s1", Kind: activity.KindIdle}
	require.NoError(t, p.Post(context.Background(), ev))

	assert.Equal(t, ev, got)
	assert.Equal(t, "Bearer secret", auth)
}

func TestPoster_Post_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewPoster(srv.URL, "").Post(context.Background(), activity.Event{TaskID: "t1", SessionID: "s1", Kind: activity.KindBusy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
