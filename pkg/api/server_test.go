package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/config"
	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/protocol"
	"github.com/agentmesh/agentmesh/pkg/taskmanager"
)

// scriptedAgent lets each test supply its own agent behavior.
type scriptedAgent struct {
	execute func(ctx context.Context, rc *taskmanager.RequestContext, q *taskmanager.EventQueue) error
	cancel  func(ctx context.Context, rc *taskmanager.RequestContext, q *taskmanager.EventQueue) error
}

func (h *scriptedAgent) Execute(ctx context.Context, rc *taskmanager.RequestContext, q *taskmanager.EventQueue) error {
	if h.execute == nil {
		return nil
	}
	return h.execute(ctx, rc, q)
}

func (h *scriptedAgent) Cancel(ctx context.Context, rc *taskmanager.RequestContext, q *taskmanager.EventQueue) error {
	if h.cancel == nil {
		return nil
	}
	return h.cancel(ctx, rc, q)
}

// completingAgent emits WORKING, one artifact, then COMPLETED final.
func completingAgent() *scriptedAgent {
	return &scriptedAgent{
		execute: func(ctx context.Context, rc *taskmanager.RequestContext, q *taskmanager.EventQueue) error {
			if err := q.EnqueueStatus(protocol.TaskStatus{State: protocol.TaskStateWorking}, false); err != nil {
				return err
			}
			if err := q.EnqueueArtifact(protocol.Artifact{
				ArtifactID: "a1",
				Parts:      []protocol.Part{protocol.TextPart("result")},
			}, false, true); err != nil {
				return err
			}
			return q.EnqueueStatus(protocol.TaskStatus{State: protocol.TaskStateCompleted}, true)
		},
	}
}

func newTestServer(t *testing.T, handler taskmanager.AgentHandler) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	store, err := eventstore.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	manager := taskmanager.New(store, handler, taskmanager.Config{
		QueueCapacity:     cfg.QueueCapacity,
		CancelGraceWindow: 200 * time.Millisecond,
	})
	t.Cleanup(manager.Shutdown)
	return NewServer(cfg, store, manager)
}

func userMessage(text string) protocol.Message {
	return protocol.Message{
		MessageID: "user-" + text,
		Role:      protocol.RoleUser,
		Parts:     []protocol.Part{protocol.TextPart(text)},
	}
}

// doJSON performs one request against the server's router.
func doJSON(t *testing.T, s *Server, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

// rpcReply mirrors the JSON-RPC response envelope for assertions.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *protocol.Error `json:"error"`
}

// doRPC posts one JSON-RPC request and decodes the response envelope.
func doRPC(t *testing.T, s *Server, method string, params any) rpcReply {
	t.Helper()
	return doRPCWithID(t, s, json.RawMessage(`1`), method, params)
}

func doRPCWithID(t *testing.T, s *Server, id json.RawMessage, method string, params any) rpcReply {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		req["id"] = id
	}
	if params != nil {
		req["params"] = params
	}
	rec := doJSON(t, s, http.MethodPost, "/a2a", req, nil)
	require.Equal(t, http.StatusOK, rec.Code, "JSON-RPC binding always answers 200: %s", rec.Body.String())

	var reply rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	return reply
}

// decodeResult unmarshals an RPC result, failing the test on an error frame.
func decodeResult[T any](t *testing.T, reply rpcReply) T {
	t.Helper()
	require.Nil(t, reply.Error, "unexpected RPC error: %+v", reply.Error)
	var v T
	require.NoError(t, json.Unmarshal(reply.Result, &v))
	return v
}

// sendTask drives one message through the REST binding and returns the
// resulting task.
func sendTask(t *testing.T, s *Server, msg protocol.Message) protocol.Task {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/v1/message:send", protocol.SendMessageParams{Message: msg}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp protocol.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Task)
	return *resp.Task
}

// restError decodes the REST error envelope.
func restError(t *testing.T, rec *httptest.ResponseRecorder) *protocol.Error {
	t.Helper()
	var body restErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}
