package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// DefaultCancelGraceWindow is how long a cancellation waits for the
// handler to emit a terminal event before the manager forces CANCELED.
const DefaultCancelGraceWindow = 5 * time.Second

// Config tunes a Manager. Zero values take defaults.
type Config struct {
	QueueCapacity     int
	CancelGraceWindow time.Duration
}

// Manager orchestrates agent handler runs against the event store.
type Manager struct {
	store   *eventstore.FileStore
	handler AgentHandler
	cfg     Config

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates a Manager driving the given handler.
func New(store *eventstore.FileStore, handler AgentHandler, cfg Config) *Manager {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.CancelGraceWindow <= 0 {
		cfg.CancelGraceWindow = DefaultCancelGraceWindow
	}
	return &Manager{
		store:   store,
		handler: handler,
		cfg:     cfg,
		active:  map[string]context.CancelFunc{},
	}
}

// SendMessage runs one handler turn for the message's task (creating the
// task when the message names none) and returns either the handler's sole
// direct message or the task's resulting state.
func (m *Manager) SendMessage(ctx context.Context, params protocol.SendMessageParams) (*protocol.SendMessageResponse, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	rc, err := m.prepare(ctx, params.Message)
	if err != nil {
		return nil, err
	}

	blocking := true
	if params.Configuration != nil && params.Configuration.Blocking != nil {
		blocking = *params.Configuration.Blocking
	}
	var historyLength *int
	if params.Configuration != nil {
		historyLength = params.Configuration.HistoryLength
	}

	if !blocking {
		go func() {
			if res := m.run(context.WithoutCancel(ctx), rc); res.err != nil {
				slog.Error("Non-blocking run failed", "task_id", rc.TaskID, "error", res.err)
			}
		}()
		// The seeded snapshot is already durable; the response reflects the
		// log as of the send, no waiting on the run.
		return m.taskResponse(ctx, rc.TaskID, historyLength)
	}

	res := m.run(ctx, rc)
	if res.err != nil {
		return nil, protocol.ErrInternal("agent execution failed").WithData(res.err.Error())
	}
	// A run that produced exactly one direct message and nothing else is a
	// message exchange, not a task progression.
	if res.messageCount == 1 && !res.nonMessage {
		return &protocol.SendMessageResponse{Message: res.lastMessage}, nil
	}
	return m.taskResponse(ctx, rc.TaskID, historyLength)
}

// SendMessageStream runs one handler turn and returns the task's event
// stream from version 0: full catch-up, then the live tail, closed by the
// terminal event. The run itself is detached from ctx; dropping the stream
// does not stop the task.
func (m *Manager) SendMessageStream(ctx context.Context, params protocol.SendMessageParams) (<-chan eventstore.Envelope, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	rc, err := m.prepare(ctx, params.Message)
	if err != nil {
		return nil, err
	}
	stream, err := m.store.Subscribe(ctx, rc.TaskID, -1)
	if err != nil {
		return nil, m.mapStoreError(rc.TaskID, err)
	}
	go func() {
		if res := m.run(context.WithoutCancel(ctx), rc); res.err != nil {
			slog.Error("Streaming run failed", "task_id", rc.TaskID, "error", res.err)
		}
	}()
	return stream, nil
}

// SubscribeToTask attaches to an existing task's stream after the given
// version (-1 for the full log).
func (m *Manager) SubscribeToTask(ctx context.Context, taskID string, afterVersion int) (<-chan eventstore.Envelope, error) {
	stream, err := m.store.Subscribe(ctx, taskID, afterVersion)
	if err != nil {
		return nil, m.mapStoreError(taskID, err)
	}
	return stream, nil
}

// GetTask returns a task's projection with history-length semantics
// applied.
func (m *Manager) GetTask(ctx context.Context, params protocol.GetTaskParams) (*protocol.Task, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	task, err := m.store.GetTask(ctx, params.ID)
	if err != nil {
		return nil, m.mapStoreError(params.ID, err)
	}
	task.TrimHistory(params.HistoryLength)
	return task, nil
}

// ListTasks returns one page of task projections.
func (m *Manager) ListTasks(ctx context.Context, params protocol.ListTasksParams) (*protocol.ListTasksResult, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	result, err := m.store.List(ctx, params)
	if err != nil {
		if errors.Is(err, eventstore.ErrInvalidListRequest) {
			return nil, protocol.ErrInvalidParams("%v", err)
		}
		return nil, protocol.ErrInternal("list tasks").WithData(err.Error())
	}
	return result, nil
}

// CancelTask requests cancellation of a task: the running handler's
// context is canceled, the handler's Cancel hook runs, and if no terminal
// event lands within the grace window the manager appends a final CANCELED
// status itself. Returns the task's state after cancellation.
func (m *Manager) CancelTask(ctx context.Context, taskID string) (*protocol.Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, m.mapStoreError(taskID, err)
	}
	if task.Status.State.IsTerminal() {
		return nil, protocol.ErrTaskNotCancelable(taskID)
	}

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CancelGraceWindow)
	defer cancel()

	if m.cancelActive(taskID) {
		// The in-flight run settles the cancellation itself once its
		// context ends; wait for its terminal event and force CANCELED if
		// it never lands within the window.
		m.awaitTerminal(cancelCtx, taskID)
		m.forceCanceled(taskID, task.ContextID)
	} else {
		m.settleCancel(cancelCtx, &RequestContext{TaskID: taskID, ContextID: task.ContextID, Task: task})
	}

	task, err = m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, m.mapStoreError(taskID, err)
	}
	if !task.Status.State.IsTerminal() {
		return nil, protocol.ErrInternal("cancel task").WithData("task did not reach a terminal state")
	}
	return task, nil
}

// Shutdown cancels every in-flight run.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.active {
		cancel()
		delete(m.active, id)
	}
}

// prepare validates the message against the task lifecycle and records it:
// new tasks get a seeded SUBMITTED snapshot whose history opens with the
// user message, continuations append the message to the existing log.
func (m *Manager) prepare(ctx context.Context, msg protocol.Message) (*RequestContext, error) {
	if msg.TaskID == "" {
		taskID := uuid.NewString()
		contextID := msg.ContextID
		if contextID == "" {
			contextID = uuid.NewString()
		}
		msg.TaskID = taskID
		msg.ContextID = contextID

		now := time.Now().UTC()
		seed := &protocol.Task{
			ID:        taskID,
			ContextID: contextID,
			Status:    protocol.TaskStatus{State: protocol.TaskStateSubmitted, Timestamp: &now},
			History:   []protocol.Message{msg},
		}
		if _, err := m.store.Append(ctx, taskID, protocol.Event{Task: seed}, nil); err != nil {
			return nil, protocol.ErrInternal("create task").WithData(err.Error())
		}
		return &RequestContext{TaskID: taskID, ContextID: contextID, Message: msg}, nil
	}

	task, err := m.store.GetTask(ctx, msg.TaskID)
	if err != nil {
		return nil, m.mapStoreError(msg.TaskID, err)
	}
	if task.Status.State.IsTerminal() {
		return nil, protocol.ErrInvalidRequest("task %s is in terminal state %s", task.ID, task.Status.State)
	}
	if msg.ContextID != "" && msg.ContextID != task.ContextID {
		return nil, protocol.ErrInvalidRequest("message context %s does not match task context %s", msg.ContextID, task.ContextID)
	}
	msg.ContextID = task.ContextID
	if _, err := m.store.Append(ctx, task.ID, protocol.Event{Message: &msg}, nil); err != nil {
		return nil, m.mapStoreError(task.ID, err)
	}
	return &RequestContext{
		TaskID:         task.ID,
		ContextID:      task.ContextID,
		Message:        msg,
		Task:           task,
		IsContinuation: true,
	}, nil
}

// runResult summarizes what one handler invocation emitted.
type runResult struct {
	messageCount int
	nonMessage   bool
	lastMessage  *protocol.Message
	err          error
}

// run drives one handler invocation: events flow from the queue into the
// store in emission order while Execute runs. Handler errors and panics
// fail the task with a final FAILED status; a run ended by context
// cancellation settles through the cancel flow and ends CANCELED.
func (m *Manager) run(ctx context.Context, rc *RequestContext) runResult {
	runCtx, cancel := context.WithCancel(ctx)
	m.register(rc.TaskID, cancel)
	defer func() {
		m.unregister(rc.TaskID)
		cancel()
	}()

	queue := NewEventQueue(rc.TaskID, rc.ContextID, m.cfg.QueueCapacity)
	var res runResult
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		queue.drain(func(ev protocol.Event) {
			if ev.Message != nil {
				res.messageCount++
				res.lastMessage = ev.Message
			} else {
				res.nonMessage = true
			}
			if res.err != nil {
				return // the log already rejected an event of this run
			}
			// Appends use a background context: once emitted, events are
			// recorded even if the request goes away mid-run.
			if _, err := m.store.Append(context.Background(), rc.TaskID, ev, nil); err != nil {
				slog.Error("Failed to append handler event",
					"task_id", rc.TaskID, "kind", ev.Kind(), "error", err)
				res.err = err
			}
		})
	}()

	execErr := m.invokeExecute(runCtx, rc, queue)
	queue.Complete()
	<-drained

	// A canceled run context is a cancellation, not a handler failure,
	// even when Execute surfaces it as ctx.Err().
	canceled := runCtx.Err() != nil &&
		(execErr == nil || errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded))
	if execErr != nil && !canceled {
		res.err = execErr
	}
	switch {
	case res.err != nil:
		m.failTask(rc.TaskID, rc.ContextID, res.err)
	case canceled:
		settleCtx, done := context.WithTimeout(context.Background(), m.cfg.CancelGraceWindow)
		m.settleCancel(settleCtx, rc)
		done()
	}
	return res
}

// invokeExecute calls the handler with panic recovery.
func (m *Manager) invokeExecute(ctx context.Context, rc *RequestContext, queue *EventQueue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return m.handler.Execute(ctx, rc, queue)
}

// invokeCancel calls the handler's cancel hook with panic recovery.
func (m *Manager) invokeCancel(ctx context.Context, rc *RequestContext, queue *EventQueue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler cancel panic: %v", r)
		}
	}()
	return m.handler.Cancel(ctx, rc, queue)
}

// failTask appends a final FAILED status unless the task already ended.
func (m *Manager) failTask(taskID, contextID string, cause error) {
	task, err := m.store.GetTask(context.Background(), taskID)
	if err == nil && task.Status.State.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	ev := protocol.Event{StatusUpdate: &protocol.TaskStatusUpdate{
		TaskID:    taskID,
		ContextID: contextID,
		Status: protocol.TaskStatus{
			State:     protocol.TaskStateFailed,
			Timestamp: &now,
			Message: &protocol.Message{
				MessageID: uuid.NewString(),
				TaskID:    taskID,
				ContextID: contextID,
				Role:      protocol.RoleAgent,
				Parts:     []protocol.Part{protocol.TextPart(cause.Error())},
			},
		},
		Final: true,
	}}
	if _, err := m.store.Append(context.Background(), taskID, ev, nil); err != nil && !errors.Is(err, eventstore.ErrTaskTerminal) {
		slog.Error("Failed to record task failure", "task_id", taskID, "error", err)
	}
}

// settleCancel drives a cancellation to a terminal state: the handler's
// Cancel hook runs with its own queue, then the task gets the grace window
// to end before a final CANCELED status is forced. No-op when the task is
// already terminal.
func (m *Manager) settleCancel(ctx context.Context, rc *RequestContext) {
	task, err := m.store.GetTask(context.Background(), rc.TaskID)
	if err == nil && task.Status.State.IsTerminal() {
		return
	}

	queue := NewEventQueue(rc.TaskID, rc.ContextID, m.cfg.QueueCapacity)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		queue.drain(func(ev protocol.Event) {
			if _, err := m.store.Append(context.Background(), rc.TaskID, ev, nil); err != nil && !errors.Is(err, eventstore.ErrTaskTerminal) {
				slog.Warn("Failed to append cancel event", "task_id", rc.TaskID, "error", err)
			}
		})
	}()
	if err := m.invokeCancel(ctx, rc, queue); err != nil {
		slog.Warn("Handler cancel hook failed", "task_id", rc.TaskID, "error", err)
	}
	queue.Complete()
	<-drained

	m.awaitTerminal(ctx, rc.TaskID)
	m.forceCanceled(rc.TaskID, rc.ContextID)
}

// forceCanceled appends a final CANCELED status unless the task already
// ended.
func (m *Manager) forceCanceled(taskID, contextID string) {
	task, err := m.store.GetTask(context.Background(), taskID)
	if err != nil || task.Status.State.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	ev := protocol.Event{StatusUpdate: &protocol.TaskStatusUpdate{
		TaskID:    taskID,
		ContextID: contextID,
		Status:    protocol.TaskStatus{State: protocol.TaskStateCanceled, Timestamp: &now},
		Final:     true,
	}}
	if _, err := m.store.Append(context.Background(), taskID, ev, nil); err != nil && !errors.Is(err, eventstore.ErrTaskTerminal) {
		slog.Error("Failed to record task cancellation", "task_id", taskID, "error", err)
	}
}

// awaitTerminal blocks until the task reaches a terminal state or ctx
// ends. The store closes subscriptions on terminal events, so draining one
// is the wait.
func (m *Manager) awaitTerminal(ctx context.Context, taskID string) {
	stream, err := m.store.Subscribe(ctx, taskID, -1)
	if err != nil {
		return
	}
	for range stream {
	}
}

func (m *Manager) taskResponse(ctx context.Context, taskID string, historyLength *int) (*protocol.SendMessageResponse, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, m.mapStoreError(taskID, err)
	}
	task.TrimHistory(historyLength)
	return &protocol.SendMessageResponse{Task: task}, nil
}

// mapStoreError translates store sentinels into protocol errors.
func (m *Manager) mapStoreError(taskID string, err error) error {
	switch {
	case errors.Is(err, eventstore.ErrTaskNotFound):
		return protocol.ErrTaskNotFound(taskID)
	case errors.Is(err, eventstore.ErrTaskTerminal):
		return protocol.ErrInvalidRequest("task %s is in a terminal state", taskID)
	case errors.Is(err, eventstore.ErrContextMismatch), errors.Is(err, eventstore.ErrInvalidEvent):
		return protocol.ErrInvalidRequest("%v", err)
	case errors.Is(err, eventstore.ErrVersionConflict):
		return protocol.ErrInvalidRequest("concurrent modification of task %s", taskID)
	default:
		return protocol.ErrInternal("event store failure").WithData(err.Error())
	}
}

func (m *Manager) register(taskID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[taskID] = cancel
}

func (m *Manager) unregister(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, taskID)
}

// cancelActive signals the in-flight run for a task, reporting whether one
// was registered.
func (m *Manager) cancelActive(taskID string) bool {
	m.mu.Lock()
	cancel, ok := m.active[taskID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
