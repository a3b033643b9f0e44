package taskmanager

import (
	"errors"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// ErrQueueClosed is returned by enqueue calls after Complete.
var ErrQueueClosed = errors.New("event queue is closed")

// DefaultQueueCapacity bounds the event queue when no capacity is
// configured.
const DefaultQueueCapacity = 64

// EventQueue carries events from one handler invocation to the store. It
// is bounded: enqueueing blocks when the store-side drain falls behind.
// Events are stamped with the task and context ids of the invocation.
//
// The handler is the only producer; it must stop enqueueing once Complete
// is called.
type EventQueue struct {
	taskID    string
	contextID string

	ch   chan protocol.Event
	done chan struct{}
	once sync.Once
}

// NewEventQueue builds a queue for one invocation of a handler.
func NewEventQueue(taskID, contextID string, capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{
		taskID:    taskID,
		contextID: contextID,
		ch:        make(chan protocol.Event, capacity),
		done:      make(chan struct{}),
	}
}

// TaskID returns the task this queue feeds.
func (q *EventQueue) TaskID() string { return q.taskID }

// ContextID returns the context of the task this queue feeds.
func (q *EventQueue) ContextID() string { return q.contextID }

// Enqueue stamps and queues a raw event.
func (q *EventQueue) Enqueue(ev protocol.Event) error {
	q.stamp(&ev)
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// EnqueueTask queues a full task snapshot.
func (q *EventQueue) EnqueueTask(task *protocol.Task) error {
	return q.Enqueue(protocol.Event{Task: task.Clone()})
}

// EnqueueStatus queues a status transition. A missing timestamp is set to
// now; final marks the last status of the run and requires a terminal
// state.
func (q *EventQueue) EnqueueStatus(status protocol.TaskStatus, final bool) error {
	if status.Timestamp == nil {
		now := time.Now().UTC()
		status.Timestamp = &now
	}
	return q.Enqueue(protocol.Event{StatusUpdate: &protocol.TaskStatusUpdate{
		Status: status,
		Final:  final,
	}})
}

// EnqueueArtifact queues an artifact, either complete or as an appended
// chunk.
func (q *EventQueue) EnqueueArtifact(artifact protocol.Artifact, appendParts, lastChunk bool) error {
	return q.Enqueue(protocol.Event{ArtifactUpdate: &protocol.TaskArtifactUpdate{
		Artifact:  artifact,
		Append:    appendParts,
		LastChunk: lastChunk,
	}})
}

// EnqueueMessage queues a direct agent message.
func (q *EventQueue) EnqueueMessage(msg *protocol.Message) error {
	out := *msg
	return q.Enqueue(protocol.Event{Message: &out})
}

// Complete marks the queue finished. Queued events are still drained;
// further enqueues fail with ErrQueueClosed. Idempotent.
func (q *EventQueue) Complete() {
	q.once.Do(func() { close(q.done) })
}

// stamp fills in the invocation's task and context ids where the event
// leaves them blank.
func (q *EventQueue) stamp(ev *protocol.Event) {
	switch {
	case ev.Task != nil:
		if ev.Task.ID == "" {
			ev.Task.ID = q.taskID
		}
		if ev.Task.ContextID == "" {
			ev.Task.ContextID = q.contextID
		}
	case ev.Message != nil:
		if ev.Message.TaskID == "" {
			ev.Message.TaskID = q.taskID
		}
		if ev.Message.ContextID == "" {
			ev.Message.ContextID = q.contextID
		}
		if ev.Message.Role == "" {
			ev.Message.Role = protocol.RoleAgent
		}
	case ev.StatusUpdate != nil:
		if ev.StatusUpdate.TaskID == "" {
			ev.StatusUpdate.TaskID = q.taskID
		}
		if ev.StatusUpdate.ContextID == "" {
			ev.StatusUpdate.ContextID = q.contextID
		}
	case ev.ArtifactUpdate != nil:
		if ev.ArtifactUpdate.TaskID == "" {
			ev.ArtifactUpdate.TaskID = q.taskID
		}
		if ev.ArtifactUpdate.ContextID == "" {
			ev.ArtifactUpdate.ContextID = q.contextID
		}
	}
}

// drain receives queued events until Complete has been called and the
// buffer is empty, invoking fn for each. Used by the manager's store-side
// pump.
func (q *EventQueue) drain(fn func(protocol.Event)) {
	for {
		select {
		case ev := <-q.ch:
			fn(ev)
		case <-q.done:
			for {
				select {
				case ev := <-q.ch:
					fn(ev)
				default:
					return
				}
			}
		}
	}
}
