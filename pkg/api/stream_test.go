package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

type sseFrame struct {
	id   int
	data []byte
}

// parseSSE splits a recorded event-stream body into frames.
func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var frame sseFrame
		frame.id = -1
		for _, line := range strings.Split(block, "\n") {
			if raw, ok := strings.CutPrefix(line, "id: "); ok {
				id, err := strconv.Atoi(raw)
				require.NoError(t, err)
				frame.id = id
			}
			if raw, ok := strings.CutPrefix(line, "data: "); ok {
				frame.data = []byte(raw)
			}
		}
		require.NotNil(t, frame.data, "frame without data: %q", block)
		frames = append(frames, frame)
	}
	return frames
}

func eventKinds(t *testing.T, frames []sseFrame, decode func([]byte) protocol.Event) []string {
	t.Helper()
	kinds := make([]string, 0, len(frames))
	for _, f := range frames {
		ev := decode(f.data)
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

func TestRESTMessageStream(t *testing.T) {
	s := newTestServer(t, completingAgent())

	rec := doJSON(t, s, http.MethodPost, "/v1/message:stream",
		protocol.SendMessageParams{Message: userMessage("hello")}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 4, "seed snapshot plus three handler events")

	kinds := eventKinds(t, frames, func(data []byte) protocol.Event {
		var ev protocol.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	})
	assert.Equal(t, []string{"task", "statusUpdate", "artifactUpdate", "statusUpdate"}, kinds)

	// The SSE id field carries the log version for resume.
	for i, f := range frames {
		assert.Equal(t, i, f.id)
	}
}

func TestRPCStreamFramesAreResults(t *testing.T) {
	s := newTestServer(t, completingAgent())

	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  protocol.MethodSendStreamingMessage,
		"params":  protocol.SendMessageParams{Message: userMessage("hello")},
	}
	rec := doJSON(t, s, http.MethodPost, "/a2a", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 4)

	kinds := eventKinds(t, frames, func(data []byte) protocol.Event {
		var reply rpcReply
		require.NoError(t, json.Unmarshal(data, &reply))
		require.Nil(t, reply.Error)
		assert.JSONEq(t, `7`, string(reply.ID))

		var ev protocol.Event
		require.NoError(t, json.Unmarshal(reply.Result, &ev))
		return ev
	})
	assert.Equal(t, []string{"task", "statusUpdate", "artifactUpdate", "statusUpdate"}, kinds)

	// The stream ends on the final status update.
	var last rpcReply
	require.NoError(t, json.Unmarshal(frames[3].data, &last))
	var ev protocol.Event
	require.NoError(t, json.Unmarshal(last.Result, &ev))
	require.NotNil(t, ev.StatusUpdate)
	assert.True(t, ev.StatusUpdate.Final)
	assert.Equal(t, protocol.TaskStateCompleted, ev.StatusUpdate.Status.State)
}

func TestRESTSubscribeReplaysTerminalTask(t *testing.T) {
	s := newTestServer(t, completingAgent())
	task := sendTask(t, s, userMessage("hello"))

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks/"+task.ID+":subscribe", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, 0, frames[0].id)
	assert.Equal(t, 3, frames[3].id)
}

func TestRESTSubscribeResumesAfterLastEventID(t *testing.T) {
	s := newTestServer(t, completingAgent())
	task := sendTask(t, s, userMessage("hello"))

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks/"+task.ID+":subscribe?lastEventId=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].id)
	assert.Equal(t, 3, frames[1].id)
}

func TestRESTSubscribeUnknownTask(t *testing.T) {
	s := newTestServer(t, completingAgent())

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks/missing:subscribe", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, protocol.CodeTaskNotFound, restError(t, rec).Code)
}
