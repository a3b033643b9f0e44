package eventstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// DefaultPageSize is used when a list request does not set a page size.
const DefaultPageSize = 50

// List returns one page of task projections matching the filter, newest
// status first. Filters compose with AND; unset filters match everything.
func (s *FileStore) List(ctx context.Context, params protocol.ListTasksParams) (*protocol.ListTasksResult, error) {
	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 {
		return nil, fmt.Errorf("%w: page size must be positive", ErrInvalidListRequest)
	}
	offset, err := decodePageToken(params.PageToken)
	if err != nil {
		return nil, err
	}

	ids, err := s.candidateIDs(params.ContextID)
	if err != nil {
		return nil, err
	}

	var tasks []*protocol.Task
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			// A log can disappear between directory scan and load.
			slog.Warn("Skipping unreadable task during list", "task_id", id, "error", err)
			continue
		}
		if !matchesFilter(task, params) {
			continue
		}
		tasks = append(tasks, task)
	}

	sortByStatusTime(tasks)

	total := len(tasks)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	result := &protocol.ListTasksResult{
		Tasks:     make([]protocol.Task, 0, end-offset),
		PageSize:  pageSize,
		TotalSize: total,
	}
	for _, task := range tasks[offset:end] {
		task.TrimHistory(params.HistoryLength)
		if !params.IncludeArtifacts {
			task.Artifacts = nil
		}
		result.Tasks = append(result.Tasks, *task)
	}
	if end < total {
		result.NextPageToken = encodePageToken(end)
	}
	return result, nil
}

// candidateIDs resolves the id set to inspect: the context index when a
// context filter is present, the whole events directory otherwise.
func (s *FileStore) candidateIDs(contextID string) ([]string, error) {
	if contextID != "" {
		return s.readIndex(contextID)
	}
	return s.TaskIDs()
}

func matchesFilter(task *protocol.Task, params protocol.ListTasksParams) bool {
	if params.Status != "" && task.Status.State != params.Status {
		return false
	}
	if params.StatusTimestampAfter != nil {
		ts := task.Status.Timestamp
		if ts == nil || !ts.After(*params.StatusTimestampAfter) {
			return false
		}
	}
	return true
}

// sortByStatusTime orders newest status timestamp first; tasks without a
// timestamp sort last, ties break on task id for a stable page order.
func sortByStatusTime(tasks []*protocol.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ti, tj := tasks[i].Status.Timestamp, tasks[j].Status.Timestamp
		switch {
		case ti == nil && tj == nil:
			return tasks[i].ID < tasks[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return tasks[i].ID < tasks[j].ID
		default:
			return ti.After(*tj)
		}
	})
}

const pageTokenPrefix = "o:"

func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pageTokenPrefix + strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidListRequest)
	}
	rest, ok := strings.CutPrefix(string(raw), pageTokenPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidListRequest)
	}
	offset, err := strconv.Atoi(rest)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidListRequest)
	}
	return offset, nil
}
