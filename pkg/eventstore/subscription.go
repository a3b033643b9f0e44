package eventstore

import (
	"context"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// subscriber is an unbounded in-process event buffer. Appends never block
// on slow consumers; push and close run inside the task's append critical
// section and must stay O(1).
type subscriber struct {
	notify chan struct{}

	mu     chan struct{} // 1-slot semaphore, usable with select
	buf    []Envelope
	closed bool
}

func newSubscriber() *subscriber {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		mu:     make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

func (s *subscriber) lock()   { <-s.mu }
func (s *subscriber) unlock() { s.mu <- struct{}{} }

func (s *subscriber) push(env Envelope) {
	s.lock()
	if !s.closed {
		s.buf = append(s.buf, env)
	}
	s.unlock()
	s.wake()
}

func (s *subscriber) close() {
	s.lock()
	s.closed = true
	s.unlock()
	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next blocks until an envelope is buffered, the subscriber is closed (ok
// false after the buffer drains), or the context ends.
func (s *subscriber) next(ctx context.Context) (Envelope, bool) {
	for {
		s.lock()
		if len(s.buf) > 0 {
			env := s.buf[0]
			s.buf = s.buf[1:]
			s.unlock()
			return env, true
		}
		closed := s.closed
		s.unlock()
		if closed {
			return Envelope{}, false
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Envelope{}, false
		}
	}
}

// Subscribe streams a task's events: every logged event with version
// greater than afterVersion (use -1 for the full log), in order, exactly
// once, followed by the live tail. The channel closes when the task reaches
// a terminal state or ctx ends. Unsubscribing never affects the task.
//
// The live buffer is registered before the catch-up read so no event can
// fall between catch-up and tail; overlap is dropped by version.
func (s *FileStore) Subscribe(ctx context.Context, taskID string, afterVersion int) (<-chan Envelope, error) {
	ts, err := s.state(taskID)
	if err != nil {
		return nil, err
	}

	sub := newSubscriber()
	ts.mu.Lock()
	if ts.proj != nil && ts.proj.Status.State.IsTerminal() {
		// No live tail will come; catch-up alone ends the stream.
		sub.close()
	} else {
		ts.subs[sub] = struct{}{}
	}
	ts.mu.Unlock()

	out := make(chan Envelope)
	go s.pump(ctx, ts, sub, afterVersion, out)
	return out, nil
}

func (s *FileStore) pump(ctx context.Context, ts *taskState, sub *subscriber, afterVersion int, out chan<- Envelope) {
	defer close(out)
	defer func() {
		ts.mu.Lock()
		delete(ts.subs, sub)
		ts.mu.Unlock()
		sub.close()
	}()

	history, err := s.Read(ctx, ts.id, afterVersion+1)
	if err != nil {
		return
	}
	maxSeen := afterVersion
	for _, env := range history {
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
		maxSeen = env.Version
		if endsStream(env.Event) {
			return
		}
	}

	for {
		env, ok := sub.next(ctx)
		if !ok {
			return
		}
		if env.Version <= maxSeen {
			continue // already delivered during catch-up
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
		maxSeen = env.Version
		if endsStream(env.Event) {
			return
		}
	}
}

// endsStream reports whether an event leaves its task terminal.
func endsStream(ev protocol.Event) bool {
	if su := ev.StatusUpdate; su != nil {
		return su.Status.State.IsTerminal()
	}
	if ev.Task != nil {
		return ev.Task.Status.State.IsTerminal()
	}
	return false
}
