// Package taskmanager drives agent handlers: it turns protocol send/cancel
// calls into handler invocations, moves handler output through a bounded
// event queue into the event store, and enforces the task lifecycle.
package taskmanager

import (
	"context"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// RequestContext is everything a handler learns about one invocation.
type RequestContext struct {
	TaskID    string
	ContextID string

	// Message is the incoming user message that triggered the run.
	Message protocol.Message

	// Task is the task's projection before this run; nil for new tasks.
	Task *protocol.Task

	// IsContinuation is true when the message addresses an existing,
	// non-terminal task (an input-required follow-up, for example).
	IsContinuation bool
}

// AgentHandler is the application-supplied agent logic.
//
// Execute runs one turn: it reads the request context and emits events on
// the queue. Returning an error fails the task. Execute must honor ctx
// cancellation; the manager cancels it when the client cancels the task.
//
// Cancel is invoked on a cancellation request for a running or interrupted
// task. A cooperative handler emits a CANCELED final status; if no terminal
// event lands within the manager's grace window, the manager force-cancels
// the task itself.
type AgentHandler interface {
	Execute(ctx context.Context, rc *RequestContext, queue *EventQueue) error
	Cancel(ctx context.Context, rc *RequestContext, queue *EventQueue) error
}
