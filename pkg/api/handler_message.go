package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// messageVerbHandler serves the REST custom verbs POST /v1/message:send
// and POST /v1/message:stream. The whole "message:send" segment arrives as
// the :verb param.
func (s *Server) messageVerbHandler(c *echo.Context) error {
	switch c.Param("verb") {
	case "message:send":
		return s.restSendMessage(c)
	case "message:stream":
		return s.restSendMessageStream(c)
	default:
		return writeRESTError(c, protocol.ErrMethodNotFound(c.Param("verb")))
	}
}

func (s *Server) restSendMessage(c *echo.Context) error {
	var params protocol.SendMessageParams
	if err := s.bindBody(c, &params); err != nil {
		return writeRESTError(c, err)
	}
	resp, err := s.manager.SendMessage(c.Request().Context(), params)
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) restSendMessageStream(c *echo.Context) error {
	var params protocol.SendMessageParams
	if err := s.bindBody(c, &params); err != nil {
		return writeRESTError(c, err)
	}
	stream, err := s.manager.SendMessageStream(c.Request().Context(), params)
	if err != nil {
		return writeRESTError(c, err)
	}
	return s.streamSSE(c, nil, stream)
}

// bindBody decodes a JSON request body under the body-size cap.
func (s *Server) bindBody(c *echo.Context, v any) error {
	body, err := s.readBody(c)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return protocol.ErrInvalidRequest("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return protocol.ErrParse("malformed JSON: %v", err)
	}
	return nil
}
