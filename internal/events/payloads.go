package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// AST RUN EVENTS
// =============================================================================

// RunState is the lifecycle state of an AST execution.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStatePaused    RunState = "paused"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// StatusPayload reports a transition in an execution's overall run state.
type StatusPayload struct {
	ExecutionID string   `json:"execution_id"`
	ASTName     string   `json:"ast_name"`
	State       RunState `json:"state"`
	Error       string   `json:"error,omitempty"`
}

func (StatusPayload) EventType() EventType { return EventASTStatus }

// ProgressPayload reports how far an execution has advanced through its item list.
type ProgressPayload struct {
	ExecutionID string `json:"execution_id"`
	ItemID      string `json:"item_id"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	Terminal    bool   `json:"terminal"` // true once this item's phase is done
}

func (ProgressPayload) EventType() EventType { return EventASTProgress }

// ItemResultPayload carries the outcome of a single processed item.
type ItemResultPayload struct {
	ExecutionID  string         `json:"execution_id"`
	ItemID       string         `json:"item_id"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
	Screenshots  []string       `json:"screenshots,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
}

func (ItemResultPayload) EventType() EventType { return EventASTItemResult }

// PauseStatePayload announces a pause/resume transition.
type PauseStatePayload struct {
	ExecutionID string `json:"execution_id"`
	Paused      bool   `json:"paused"`
}

func (PauseStatePayload) EventType() EventType { return EventASTPaused }

// =============================================================================
// SESSION LIFECYCLE EVENTS
// =============================================================================

// SessionCreatedPayload announces a new terminal session was registered.
type SessionCreatedPayload struct {
	SessionID string `json:"session_id"`
}

func (SessionCreatedPayload) EventType() EventType { return EventSessionCreated }

// SessionClosedPayload announces a session was torn down (grace period elapsed
// with no reconnect, or explicit client destroy).
type SessionClosedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (SessionClosedPayload) EventType() EventType { return EventSessionClosed }

// SessionReconnectGracePayload announces that a session's websocket dropped and
// its destruction timer has started.
type SessionReconnectGracePayload struct {
	SessionID  string        `json:"session_id"`
	GracePeriod time.Duration `json:"grace_period"`
}

func (SessionReconnectGracePayload) EventType() EventType { return EventSessionReconnectGrace }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

// ScheduleTriggerPayload announces a scheduled job firing.
type ScheduleTriggerPayload struct {
	JobID   string `json:"job_id"`
	ASTName string `json:"ast_name"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetStatusPayload(e Event) (StatusPayload, bool) {
	return ExtractPayload[StatusPayload](e)
}

func GetProgressPayload(e Event) (ProgressPayload, bool) {
	return ExtractPayload[ProgressPayload](e)
}

func GetItemResultPayload(e Event) (ItemResultPayload, bool) {
	return ExtractPayload[ItemResultPayload](e)
}

func GetPauseStatePayload(e Event) (PauseStatePayload, bool) {
	return ExtractPayload[PauseStatePayload](e)
}
