package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// streamSSE relays a subscription as Server-Sent Events, one frame per
// event. With a JSON-RPC id the payload is a JSON-RPC result frame
// carrying the stream response; without one (REST binding) the payload is
// the stream response itself. The event's log version rides the SSE id
// field for client-side resume.
func (s *Server) streamSSE(c *echo.Context, rpcID json.RawMessage, stream <-chan eventstore.Envelope) error {
	var w http.ResponseWriter = c.Response()
	flusher, ok := w.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case env, open := <-stream:
			if !open {
				return nil
			}
			data, err := encodeStreamFrame(rpcID, env)
			if err != nil {
				slog.Error("Failed to encode stream frame", "version", env.Version, "error", err)
				return nil
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", env.Version, data); err != nil {
				return nil // client went away
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func encodeStreamFrame(rpcID json.RawMessage, env eventstore.Envelope) ([]byte, error) {
	if rpcID != nil {
		return json.Marshal(protocol.NewResult(rpcID, env.Event))
	}
	return json.Marshal(env.Event)
}
