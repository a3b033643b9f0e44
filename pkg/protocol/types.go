// Package protocol defines the A2A wire model: tasks, messages, parts,
// artifacts, streaming events, JSON-RPC frames, protocol errors, and the
// agent card. All types marshal to the canonical A2A JSON shapes.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "TASK_STATE_SUBMITTED"
	TaskStateWorking       TaskState = "TASK_STATE_WORKING"
	TaskStateInputRequired TaskState = "TASK_STATE_INPUT_REQUIRED"
	TaskStateAuthRequired  TaskState = "TASK_STATE_AUTH_REQUIRED"
	TaskStateCompleted     TaskState = "TASK_STATE_COMPLETED"
	TaskStateCanceled      TaskState = "TASK_STATE_CANCELED"
	TaskStateFailed        TaskState = "TASK_STATE_FAILED"
	TaskStateRejected      TaskState = "TASK_STATE_REJECTED"
)

var taskStates = map[TaskState]bool{
	TaskStateSubmitted:     true,
	TaskStateWorking:       true,
	TaskStateInputRequired: true,
	TaskStateAuthRequired:  true,
	TaskStateCompleted:     true,
	TaskStateCanceled:      true,
	TaskStateFailed:        true,
	TaskStateRejected:      true,
}

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool { return taskStates[s] }

// IsTerminal reports whether s is terminal. A task in a terminal state
// accepts no further events.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}
	return false
}

// IsInterrupted reports whether s pauses the task waiting on the client.
func (s TaskState) IsInterrupted() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

func (s *TaskState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("task state must be a string: %w", err)
	}
	state := TaskState(raw)
	if !state.Valid() {
		return fmt.Errorf("unknown task state %q", raw)
	}
	*s = state
	return nil
}

// Role identifies the author side of a message.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAgent Role = "ROLE_AGENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAgent }

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	role := Role(raw)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", raw)
	}
	*r = role
	return nil
}

// Part is one unit of message or artifact content. Exactly one of the
// content fields (Text, Data, URL, Raw) must be present; presence is
// determined by which JSON key appears, so empty values still count.
type Part struct {
	Text *string        `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
	URL  *string        `json:"url,omitempty"`
	Raw  []byte         `json:"raw,omitempty"`

	// MediaType is required for URL and Raw parts.
	MediaType string         `json:"mediaType,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) Part { return Part{Text: &text} }

// DataPart builds a structured-data content part.
func DataPart(data map[string]any) Part {
	if data == nil {
		data = map[string]any{}
	}
	return Part{Data: data}
}

// FilePart builds a file-by-reference content part.
func FilePart(url, mediaType string) Part {
	return Part{URL: &url, MediaType: mediaType}
}

// Kind returns which content field is set ("text", "data", "url", "raw"),
// or "" when none or more than one is set.
func (p *Part) Kind() string {
	kind, n := "", 0
	if p.Text != nil {
		kind, n = "text", n+1
	}
	if p.Data != nil {
		kind, n = "data", n+1
	}
	if p.URL != nil {
		kind, n = "url", n+1
	}
	if p.Raw != nil {
		kind, n = "raw", n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Validate checks the exactly-one content rule and per-kind requirements.
func (p *Part) Validate() error {
	switch p.Kind() {
	case "":
		return fmt.Errorf("part must contain exactly one of text, data, url, raw")
	case "url", "raw":
		if p.MediaType == "" {
			return fmt.Errorf("file part requires mediaType")
		}
	}
	return nil
}

// Message is a single communication turn.
type Message struct {
	MessageID        string         `json:"messageId"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	TaskID           string         `json:"taskId,omitempty"`
	ContextID        string         `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validate checks structural requirements for an incoming message.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("message requires messageId")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("message requires a valid role")
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message requires at least one part")
	}
	for i := range m.Parts {
		if err := m.Parts[i].Validate(); err != nil {
			return fmt.Errorf("parts[%d]: %w", i, err)
		}
	}
	return nil
}

// TaskStatus is a task's state plus an optional agent message and timestamp.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Message   *Message   `json:"message,omitempty"`
}

// Artifact is a tangible output produced by a task.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task is the stateful unit of work, as projected from its event log.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy. Projections hand out clones so callers can
// never mutate stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	// Tasks are plain JSON data, so a marshal round-trip is a correct
	// deep copy and avoids field-by-field maintenance.
	data, err := json.Marshal(t)
	if err != nil {
		panic(fmt.Sprintf("task clone marshal: %v", err))
	}
	var out Task
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("task clone unmarshal: %v", err))
	}
	return &out
}

// TrimHistory applies history-length semantics: nil keeps everything,
// zero drops history, k keeps the last k entries.
func (t *Task) TrimHistory(historyLength *int) {
	if historyLength == nil {
		return
	}
	n := *historyLength
	switch {
	case n <= 0:
		t.History = nil
	case len(t.History) > n:
		t.History = t.History[len(t.History)-n:]
	}
}
