package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// seedTask writes a snapshot with a fixed status timestamp so ordering is
// deterministic.
func seedTask(t *testing.T, store *FileStore, taskID, contextID string, state protocol.TaskState, at time.Time) {
	t.Helper()
	ev := protocol.Event{Task: &protocol.Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    protocol.TaskStatus{State: state, Timestamp: &at},
		History: []protocol.Message{
			{MessageID: taskID + "-m1", Role: protocol.RoleUser, Parts: []protocol.Part{protocol.TextPart("a")}},
			{MessageID: taskID + "-m2", Role: protocol.RoleAgent, Parts: []protocol.Part{protocol.TextPart("b")}},
		},
		Artifacts: []protocol.Artifact{{ArtifactID: taskID + "-a1", Parts: []protocol.Part{protocol.TextPart("out")}}},
	}}
	_, err := store.Append(context.Background(), taskID, ev, nil)
	require.NoError(t, err)
}

func TestListFiltersByContext(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedTask(t, store, "t1", "ctx-a", protocol.TaskStateWorking, base)
	seedTask(t, store, "t2", "ctx-a", protocol.TaskStateWorking, base.Add(time.Minute))
	seedTask(t, store, "t3", "ctx-b", protocol.TaskStateWorking, base.Add(2*time.Minute))

	res, err := store.List(context.Background(), protocol.ListTasksParams{ContextID: "ctx-a"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSize)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "t2", res.Tasks[0].ID, "newest status first")
	assert.Equal(t, "t1", res.Tasks[1].ID)

	empty, err := store.List(context.Background(), protocol.ListTasksParams{ContextID: "ctx-none"})
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSize)
	assert.Empty(t, empty.Tasks)
}

func TestListFiltersByStatusAndTimestamp(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedTask(t, store, "t1", "ctx-a", protocol.TaskStateWorking, base)
	seedTask(t, store, "t2", "ctx-a", protocol.TaskStateCompleted, base.Add(time.Minute))
	seedTask(t, store, "t3", "ctx-a", protocol.TaskStateCompleted, base.Add(2*time.Minute))

	res, err := store.List(context.Background(), protocol.ListTasksParams{
		Status: protocol.TaskStateCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSize)

	after := base.Add(90 * time.Second)
	res, err = store.List(context.Background(), protocol.ListTasksParams{
		Status:               protocol.TaskStateCompleted,
		StatusTimestampAfter: &after,
	})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "t3", res.Tasks[0].ID)
}

func TestListPagination(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedTask(t, store, string(rune('a'+i)), "ctx", protocol.TaskStateWorking, base.Add(time.Duration(i)*time.Minute))
	}

	page1, err := store.List(context.Background(), protocol.ListTasksParams{ContextID: "ctx", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page1.TotalSize)
	require.Len(t, page1.Tasks, 2)
	require.NotEmpty(t, page1.NextPageToken)

	page2, err := store.List(context.Background(), protocol.ListTasksParams{
		ContextID: "ctx", PageSize: 2, PageToken: page1.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page2.Tasks, 2)
	require.NotEmpty(t, page2.NextPageToken)

	page3, err := store.List(context.Background(), protocol.ListTasksParams{
		ContextID: "ctx", PageSize: 2, PageToken: page2.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page3.Tasks, 1)
	assert.Empty(t, page3.NextPageToken)

	// No overlaps across pages.
	seen := map[string]bool{}
	for _, page := range []*protocol.ListTasksResult{page1, page2, page3} {
		for _, task := range page.Tasks {
			assert.False(t, seen[task.ID])
			seen[task.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestListInvalidPageToken(t *testing.T) {
	store := newTestStore(t)
	_, err := store.List(context.Background(), protocol.ListTasksParams{PageToken: "???not-base64???"})
	assert.ErrorIs(t, err, ErrInvalidListRequest)

	_, err = store.List(context.Background(), protocol.ListTasksParams{PageToken: "bm9wZQ"})
	assert.ErrorIs(t, err, ErrInvalidListRequest)
}

func TestListTrimsHistoryAndArtifacts(t *testing.T) {
	store := newTestStore(t)
	seedTask(t, store, "t1", "ctx", protocol.TaskStateWorking, time.Now().UTC())

	// Default: artifacts excluded, history untouched.
	res, err := store.List(context.Background(), protocol.ListTasksParams{ContextID: "ctx"})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Nil(t, res.Tasks[0].Artifacts)
	assert.Len(t, res.Tasks[0].History, 2)

	one := 1
	res, err = store.List(context.Background(), protocol.ListTasksParams{
		ContextID:        "ctx",
		HistoryLength:    &one,
		IncludeArtifacts: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	require.Len(t, res.Tasks[0].History, 1)
	assert.Equal(t, "t1-m2", res.Tasks[0].History[0].MessageID)
	assert.Len(t, res.Tasks[0].Artifacts, 1)
}

func TestListWithoutContextScansAllTasks(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedTask(t, store, "t1", "ctx-a", protocol.TaskStateWorking, base)
	seedTask(t, store, "t2", "ctx-b", protocol.TaskStateWorking, base.Add(time.Minute))

	res, err := store.List(context.Background(), protocol.ListTasksParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSize)
}
