// Package agent provides a small built-in agent handler used by the server
// binary and end-to-end tests.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/agentmesh/pkg/protocol"
	"github.com/agentmesh/agentmesh/pkg/taskmanager"
)

// EchoHandler answers every message with an "Echo: ..." artifact and
// completes. It exists to exercise the full task lifecycle without any
// real agent behind the server.
type EchoHandler struct{}

// NewEchoHandler creates the demo handler.
func NewEchoHandler() *EchoHandler { return &EchoHandler{} }

// Execute transitions to WORKING, emits one artifact echoing the incoming
// text, and completes.
func (h *EchoHandler) Execute(ctx context.Context, rc *taskmanager.RequestContext, queue *taskmanager.EventQueue) error {
	if err := queue.EnqueueStatus(protocol.TaskStatus{State: protocol.TaskStateWorking}, false); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	artifact := protocol.Artifact{
		ArtifactID: uuid.NewString(),
		Name:       "echo",
		Parts:      []protocol.Part{protocol.TextPart("Echo: " + textOf(rc.Message))},
	}
	if err := queue.EnqueueArtifact(artifact, false, true); err != nil {
		return err
	}
	return queue.EnqueueStatus(protocol.TaskStatus{State: protocol.TaskStateCompleted}, true)
}

// Cancel acknowledges cancellation with a final CANCELED status.
func (h *EchoHandler) Cancel(ctx context.Context, rc *taskmanager.RequestContext, queue *taskmanager.EventQueue) error {
	now := time.Now().UTC()
	return queue.EnqueueStatus(protocol.TaskStatus{State: protocol.TaskStateCanceled, Timestamp: &now}, true)
}

// textOf concatenates the text parts of a message.
func textOf(msg protocol.Message) string {
	var texts []string
	for _, part := range msg.Parts {
		if part.Text != nil {
			texts = append(texts, *part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
