package protocol

import "fmt"

// TaskStatusUpdate announces a task state transition. Final marks the last
// status event of a run; a final update must carry a terminal state.
type TaskStatusUpdate struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdate carries a complete artifact or, with Append set, an
// additional chunk of parts for an existing artifact.
type TaskArtifactUpdate struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Event is the streaming/event-log union: exactly one of the four payload
// fields is present. The same shape serves as the stream response frame.
type Event struct {
	Task           *Task               `json:"task,omitempty"`
	Message        *Message            `json:"message,omitempty"`
	StatusUpdate   *TaskStatusUpdate   `json:"statusUpdate,omitempty"`
	ArtifactUpdate *TaskArtifactUpdate `json:"artifactUpdate,omitempty"`
}

// Kind returns which payload is set ("task", "message", "statusUpdate",
// "artifactUpdate"), or "" when the exactly-one rule is violated.
func (e *Event) Kind() string {
	kind, n := "", 0
	if e.Task != nil {
		kind, n = "task", n+1
	}
	if e.Message != nil {
		kind, n = "message", n+1
	}
	if e.StatusUpdate != nil {
		kind, n = "statusUpdate", n+1
	}
	if e.ArtifactUpdate != nil {
		kind, n = "artifactUpdate", n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Validate checks the exactly-one rule and per-payload requirements.
func (e *Event) Validate() error {
	switch e.Kind() {
	case "":
		return fmt.Errorf("event must contain exactly one of task, message, statusUpdate, artifactUpdate")
	case "task":
		if e.Task.ID == "" {
			return fmt.Errorf("task snapshot requires id")
		}
		if !e.Task.Status.State.Valid() {
			return fmt.Errorf("task snapshot requires a valid status.state")
		}
	case "statusUpdate":
		su := e.StatusUpdate
		if !su.Status.State.Valid() {
			return fmt.Errorf("status update requires a valid status.state")
		}
		if su.Final && !su.Status.State.IsTerminal() {
			return fmt.Errorf("final status update must carry a terminal state, got %s", su.Status.State)
		}
	case "artifactUpdate":
		au := e.ArtifactUpdate
		if au.Artifact.ArtifactID == "" {
			return fmt.Errorf("artifact update requires artifact.artifactId")
		}
	}
	return nil
}

// TaskRef returns the task the event belongs to, or "" for events that do
// not carry one (a message outside any task).
func (e *Event) TaskRef() string {
	switch {
	case e.Task != nil:
		return e.Task.ID
	case e.Message != nil:
		return e.Message.TaskID
	case e.StatusUpdate != nil:
		return e.StatusUpdate.TaskID
	case e.ArtifactUpdate != nil:
		return e.ArtifactUpdate.TaskID
	}
	return ""
}

// ContextRef returns the event's context id, or "".
func (e *Event) ContextRef() string {
	switch {
	case e.Task != nil:
		return e.Task.ContextID
	case e.Message != nil:
		return e.Message.ContextID
	case e.StatusUpdate != nil:
		return e.StatusUpdate.ContextID
	case e.ArtifactUpdate != nil:
		return e.ArtifactUpdate.ContextID
	}
	return ""
}

// IsFinal reports whether the event ends its task's run: a final terminal
// status update, or a snapshot already in a terminal state.
func (e *Event) IsFinal() bool {
	if su := e.StatusUpdate; su != nil {
		return su.Final && su.Status.State.IsTerminal()
	}
	if e.Task != nil {
		return e.Task.Status.State.IsTerminal()
	}
	return false
}

// SendMessageResponse is the non-streaming result union: exactly one of
// Task or Message is present.
type SendMessageResponse struct {
	Task    *Task    `json:"task,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Validate checks the exactly-one rule.
func (r *SendMessageResponse) Validate() error {
	if (r.Task == nil) == (r.Message == nil) {
		return fmt.Errorf("send response must contain exactly one of task, message")
	}
	return nil
}
