package eventstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// maxEventLine bounds a single JSONL event line on read.
const maxEventLine = 16 * 1024 * 1024

// Envelope pairs an event with its log version. Versions are assigned
// contiguously from 0 per task.
type Envelope struct {
	Version int            `json:"version"`
	Event   protocol.Event `json:"event"`
}

// FileStore is a file-backed event store. Layout under the base directory:
//
//	events/{taskId}.jsonl            append-only event log (source of truth)
//	projections/{taskId}.json        cached projection, rebuilt on demand
//	indexes/context_{contextId}.idx  task ids per context, one per line
//
// All appends for a task serialize on a per-task mutex; reads of the cached
// projection share it.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	tasks map[string]*taskState
}

// taskState is the in-memory head of one task's log.
type taskState struct {
	id      string
	mu      sync.Mutex
	version int // next version to assign
	proj    *protocol.Task
	subs    map[*subscriber]struct{}
}

// NewFileStore opens (or initializes) a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	for _, dir := range []string{
		filepath.Join(baseDir, "events"),
		filepath.Join(baseDir, "projections"),
		filepath.Join(baseDir, "indexes"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FileStore{
		baseDir: baseDir,
		tasks:   map[string]*taskState{},
	}, nil
}

// BaseDir returns the store's root directory.
func (s *FileStore) BaseDir() string { return s.baseDir }

func (s *FileStore) eventsPath(taskID string) string {
	return filepath.Join(s.baseDir, "events", url.PathEscape(taskID)+".jsonl")
}

func (s *FileStore) projectionPath(taskID string) string {
	return filepath.Join(s.baseDir, "projections", url.PathEscape(taskID)+".json")
}

func (s *FileStore) indexPath(contextID string) string {
	return filepath.Join(s.baseDir, "indexes", "context_"+url.PathEscape(contextID)+".idx")
}

// state returns the cached head for an existing task, loading it from disk
// on first touch. Returns ErrTaskNotFound when no log exists.
func (s *FileStore) state(taskID string) (*taskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.tasks[taskID]; ok {
		return ts, nil
	}
	if _, err := os.Stat(s.eventsPath(taskID)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("stat event log: %w", err)
	}
	ts, err := s.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	s.tasks[taskID] = ts
	return ts, nil
}

// stateForAppend is state() that also admits brand-new tasks.
func (s *FileStore) stateForAppend(taskID string) (*taskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.tasks[taskID]; ok {
		return ts, nil
	}
	if _, err := os.Stat(s.eventsPath(taskID)); err == nil {
		ts, err := s.loadTask(taskID)
		if err != nil {
			return nil, err
		}
		s.tasks[taskID] = ts
		return ts, nil
	}
	ts := &taskState{id: taskID, subs: map[*subscriber]struct{}{}}
	s.tasks[taskID] = ts
	return ts, nil
}

// loadTask rebuilds a task head from disk. The projection file is a cache:
// if it is missing or stale the log is replayed instead.
func (s *FileStore) loadTask(taskID string) (*taskState, error) {
	events, err := s.readLog(taskID)
	if err != nil {
		return nil, err
	}
	ts := &taskState{
		id:      taskID,
		version: len(events),
		subs:    map[*subscriber]struct{}{},
	}

	data, err := os.ReadFile(s.projectionPath(taskID))
	if err == nil {
		var proj protocol.Task
		if jsonErr := json.Unmarshal(data, &proj); jsonErr == nil {
			ts.proj = &proj
			return ts, nil
		}
		slog.Warn("Discarding unreadable projection, replaying log", "task_id", taskID)
	}
	ts.proj = Replay(events)
	return ts, nil
}

// Append validates and appends one event to a task's log, applies it to the
// projection, and fans it out to live subscribers. It returns the version
// assigned to the event.
//
// expectedVersion, when non-nil, must equal the version that will be
// assigned, otherwise ErrVersionConflict is returned and nothing changes.
func (s *FileStore) Append(ctx context.Context, taskID string, ev protocol.Event, expectedVersion *int) (int, error) {
	if taskID == "" {
		return 0, fmt.Errorf("%w: task id is required", ErrInvalidEvent)
	}
	if err := ev.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ref := ev.TaskRef(); ref != "" && ref != taskID {
		return 0, fmt.Errorf("%w: event names task %s", ErrInvalidEvent, ref)
	}

	ts, err := s.stateForAppend(taskID)
	if err != nil {
		return 0, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	// A head registered for this append that never records a durable event
	// must not linger: Exists and Subscribe key off the registration.
	defer func() {
		if ts.version == 0 && ts.proj == nil {
			s.evictEmpty(taskID, ts)
		}
	}()

	if ts.proj != nil && ts.proj.Status.State.IsTerminal() {
		return 0, fmt.Errorf("%w: %s", ErrTaskTerminal, taskID)
	}
	if evCtx := ev.ContextRef(); evCtx != "" && ts.proj != nil && ts.proj.ContextID != "" && evCtx != ts.proj.ContextID {
		return 0, fmt.Errorf("%w: event context %s, task context %s", ErrContextMismatch, evCtx, ts.proj.ContextID)
	}
	if expectedVersion != nil && *expectedVersion != ts.version {
		return 0, fmt.Errorf("%w: expected %d, next is %d", ErrVersionConflict, *expectedVersion, ts.version)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	if err := appendLine(s.eventsPath(taskID), line); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	first := ts.version == 0
	assigned := ts.version
	ts.version++
	ts.proj = Reduce(ts.proj, ev)

	// Projection and index are rebuildable caches: failures are logged,
	// never surfaced, and never roll back the log.
	if err := s.writeProjection(taskID, ts.proj); err != nil {
		slog.Warn("Failed to write projection", "task_id", taskID, "error", err)
	}
	if first && ts.proj.ContextID != "" {
		if err := appendLine(s.indexPath(ts.proj.ContextID), []byte(taskID)); err != nil {
			slog.Warn("Failed to update context index",
				"task_id", taskID, "context_id", ts.proj.ContextID, "error", err)
		}
	}

	env := Envelope{Version: assigned, Event: ev}
	for sub := range ts.subs {
		sub.push(env)
	}
	if ts.proj.Status.State.IsTerminal() {
		for sub := range ts.subs {
			sub.close()
		}
		clear(ts.subs)
	}
	return assigned, nil
}

// evictEmpty drops an event-less head from the cache and releases anyone
// subscribed to it. Only the exact head is removed; a concurrent append may
// already have replaced it.
func (s *FileStore) evictEmpty(taskID string, ts *taskState) {
	s.mu.Lock()
	if cur, ok := s.tasks[taskID]; ok && cur == ts {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()
	for sub := range ts.subs {
		sub.close()
	}
	clear(ts.subs)
}

// Read returns the envelopes of a task's log with version >= fromVersion.
func (s *FileStore) Read(ctx context.Context, taskID string, fromVersion int) ([]Envelope, error) {
	if _, err := s.state(taskID); err != nil {
		return nil, err
	}
	events, err := s.readLog(taskID)
	if err != nil {
		return nil, err
	}
	if fromVersion < 0 {
		fromVersion = 0
	}
	var out []Envelope
	for i := fromVersion; i < len(events); i++ {
		out = append(out, Envelope{Version: i, Event: events[i]})
	}
	return out, nil
}

// GetTask returns a clone of the task's current projection.
func (s *FileStore) GetTask(ctx context.Context, taskID string) (*protocol.Task, error) {
	ts, err := s.state(taskID)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.proj == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return ts.proj.Clone(), nil
}

// LatestVersion returns the version of the last appended event, or -1 for
// an empty log.
func (s *FileStore) LatestVersion(ctx context.Context, taskID string) (int, error) {
	ts, err := s.state(taskID)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.version - 1, nil
}

// Exists reports whether a task has an event log.
func (s *FileStore) Exists(ctx context.Context, taskID string) bool {
	_, err := s.state(taskID)
	return err == nil
}

// TaskIDs returns the ids of every task with a persisted log.
func (s *FileStore) TaskIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "events"))
	if err != nil {
		return nil, fmt.Errorf("read events directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".jsonl"))
		if err != nil {
			slog.Warn("Skipping undecodable event log", "file", name)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// readLog decodes a task's full event log from disk. A missing file is an
// empty log.
func (s *FileStore) readLog(taskID string) ([]protocol.Event, error) {
	f, err := os.Open(s.eventsPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []protocol.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev protocol.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("decode event %d of task %s: %w", len(events), taskID, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// writeProjection persists a projection atomically via temp file + rename.
func (s *FileStore) writeProjection(taskID string, task *protocol.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}
	dir := filepath.Join(s.baseDir, "projections")
	tmp, err := os.CreateTemp(dir, url.PathEscape(taskID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp projection: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp projection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp projection: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.projectionPath(taskID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename projection: %w", err)
	}
	return nil
}

// appendLine appends one newline-terminated record to a file.
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readIndex returns the task ids recorded for a context, in insertion
// order. A missing index means no tasks.
func (s *FileStore) readIndex(contextID string) ([]string, error) {
	data, err := os.ReadFile(s.indexPath(contextID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read context index: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}
