package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidateExactlyOne(t *testing.T) {
	task := &Task{ID: "t1", ContextID: "c1", Status: TaskStatus{State: TaskStateSubmitted}}
	msg := &Message{MessageID: "m1", Role: RoleAgent, Parts: []Part{TextPart("hi")}}

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"task snapshot", Event{Task: task}, false},
		{"message", Event{Message: msg}, false},
		{"status update", Event{StatusUpdate: &TaskStatusUpdate{TaskID: "t1", Status: TaskStatus{State: TaskStateWorking}}}, false},
		{"artifact update", Event{ArtifactUpdate: &TaskArtifactUpdate{TaskID: "t1", Artifact: Artifact{ArtifactID: "a1"}}}, false},
		{"empty", Event{}, true},
		{"two payloads", Event{Task: task, Message: msg}, true},
		{"snapshot without id", Event{Task: &Task{Status: TaskStatus{State: TaskStateSubmitted}}}, true},
		{"final non-terminal status", Event{StatusUpdate: &TaskStatusUpdate{TaskID: "t1", Final: true, Status: TaskStatus{State: TaskStateWorking}}}, true},
		{"final terminal status", Event{StatusUpdate: &TaskStatusUpdate{TaskID: "t1", Final: true, Status: TaskStatus{State: TaskStateCompleted}}}, false},
		{"artifact without id", Event{ArtifactUpdate: &TaskArtifactUpdate{TaskID: "t1", Artifact: Artifact{}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventRefsAndFinality(t *testing.T) {
	ev := Event{StatusUpdate: &TaskStatusUpdate{
		TaskID: "t1", ContextID: "c1",
		Status: TaskStatus{State: TaskStateCompleted}, Final: true,
	}}
	assert.Equal(t, "t1", ev.TaskRef())
	assert.Equal(t, "c1", ev.ContextRef())
	assert.True(t, ev.IsFinal())

	working := Event{StatusUpdate: &TaskStatusUpdate{TaskID: "t1", Status: TaskStatus{State: TaskStateWorking}}}
	assert.False(t, working.IsFinal())

	terminalSnapshot := Event{Task: &Task{ID: "t1", Status: TaskStatus{State: TaskStateFailed}}}
	assert.True(t, terminalSnapshot.IsFinal())
}

func TestSendMessageResponseValidate(t *testing.T) {
	task := &Task{ID: "t1"}
	msg := &Message{MessageID: "m1"}

	assert.NoError(t, (&SendMessageResponse{Task: task}).Validate())
	assert.NoError(t, (&SendMessageResponse{Message: msg}).Validate())
	assert.Error(t, (&SendMessageResponse{}).Validate())
	assert.Error(t, (&SendMessageResponse{Task: task, Message: msg}).Validate())
}
