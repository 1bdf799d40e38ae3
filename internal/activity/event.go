package activity

import "fmt"

// Kind classifies a raw activity signal from the agent runtime.
type Kind string

const (
	KindSessionCreated Kind = "sessionCreated"
	KindUserMessage    Kind = "userMessage"
	KindAgentMessage   Kind = "agentMessage"
	KindToolExecuting  Kind = "toolExecuting"
	KindBusy           Kind = "busy"
	KindIdle           Kind = "idle"
)

// ParseKind validates a kind received from outside the process.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSessionCreated, KindUserMessage, KindAgentMessage, KindToolExecuting, KindBusy, KindIdle:
		return k, nil
	default:
		return "", fmt.Errorf("unknown activity kind %q", s)
	}
}

// Event is one activity signal for a task.
type Event struct {
	TaskID          string `json:"task_id"`
	SessionID       string `json:"session_id"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Kind            Kind   `json:"kind"`
}

// Validate checks that the event carries everything the Observer needs.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	return nil
}
