package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/protocol"
	"github.com/agentmesh/agentmesh/pkg/taskmanager"
)

func TestEchoHandlerCompletesWithEchoArtifact(t *testing.T) {
	store, err := eventstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := taskmanager.New(store, NewEchoHandler(), taskmanager.Config{})

	resp, err := m.SendMessage(context.Background(), protocol.SendMessageParams{
		Message: protocol.Message{
			MessageID: "m1",
			Role:      protocol.RoleUser,
			Parts:     []protocol.Part{protocol.TextPart("hello world")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Task)

	task := resp.Task
	assert.Equal(t, protocol.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
	require.Len(t, task.Artifacts[0].Parts, 1)
	assert.Equal(t, "Echo: hello world", *task.Artifacts[0].Parts[0].Text)
}

func TestEchoHandlerCancelEmitsTerminalStatus(t *testing.T) {
	q := taskmanager.NewEventQueue("t1", "c1", 4)
	h := NewEchoHandler()
	require.NoError(t, h.Cancel(context.Background(), &taskmanager.RequestContext{TaskID: "t1"}, q))
	q.Complete()
}
