package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// rpcHandler serves the JSON-RPC 2.0 binding on POST /a2a. Protocol errors
// are JSON-RPC error frames over HTTP 200; only transport-level failures
// use other statuses.
func (s *Server) rpcHandler(c *echo.Context) error {
	if v := c.Request().Header.Get(versionHeader); !supportedVersion(v) {
		return s.writeRPC(c, protocol.NewError(nil, protocol.ErrVersionNotSupported(v)))
	}

	body, err := s.readBody(c)
	if err != nil {
		return s.writeRPC(c, protocol.NewError(nil, protocol.ErrInvalidRequest("%v", err)))
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return s.writeRPC(c, protocol.NewError(nil, protocol.ErrParse("malformed JSON: %v", err)))
	}
	if perr := req.ValidateEnvelope(); perr != nil {
		return s.writeRPC(c, protocol.NewError(req.ID, perr))
	}

	ctx := c.Request().Context()
	switch req.Method {
	case protocol.MethodSendMessage:
		var params protocol.SendMessageParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		resp, err := s.manager.SendMessage(ctx, params)
		return s.rpcResult(c, req.ID, resp, err)

	case protocol.MethodSendStreamingMessage:
		var params protocol.SendMessageParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		stream, err := s.manager.SendMessageStream(ctx, params)
		if err != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, err))
		}
		return s.streamSSE(c, rpcStreamID(req.ID), stream)

	case protocol.MethodGetTask:
		var params protocol.GetTaskParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		task, err := s.manager.GetTask(ctx, params)
		return s.rpcResult(c, req.ID, task, err)

	case protocol.MethodListTasks:
		var params protocol.ListTasksParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		result, err := s.manager.ListTasks(ctx, params)
		return s.rpcResult(c, req.ID, result, err)

	case protocol.MethodCancelTask:
		var params protocol.TaskIDParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		if perr := params.Validate(); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		task, err := s.manager.CancelTask(ctx, params.ID)
		return s.rpcResult(c, req.ID, task, err)

	case protocol.MethodSubscribeToTask:
		var params protocol.TaskIDParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		if perr := params.Validate(); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		stream, err := s.manager.SubscribeToTask(ctx, params.ID, -1)
		if err != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, err))
		}
		return s.streamSSE(c, rpcStreamID(req.ID), stream)

	case protocol.MethodCreatePushConfig:
		var params protocol.CreatePushConfigParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		cfg, err := s.createPushConfig(ctx, params)
		return s.rpcResult(c, req.ID, cfg, err)

	case protocol.MethodGetPushConfig:
		var params protocol.PushConfigIDParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		cfg, err := s.getPushConfig(ctx, params)
		return s.rpcResult(c, req.ID, cfg, err)

	case protocol.MethodListPushConfigs:
		var params protocol.ListPushConfigsParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		cfgs, err := s.listPushConfigs(ctx, params)
		return s.rpcResult(c, req.ID, cfgs, err)

	case protocol.MethodDeletePushConfig:
		var params protocol.PushConfigIDParams
		if perr := bindParams(req.Params, &params); perr != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, perr))
		}
		if err := s.deletePushConfig(ctx, params); err != nil {
			return s.writeRPC(c, protocol.NewError(req.ID, err))
		}
		return s.rpcResult(c, req.ID, struct{}{}, nil)

	case protocol.MethodGetExtendedAgentCard:
		card, err := s.extendedAgentCard(ctx, c.Request())
		return s.rpcResult(c, req.ID, card, err)

	default:
		return s.writeRPC(c, protocol.NewError(req.ID, protocol.ErrMethodNotFound(req.Method)))
	}
}

// rpcResult writes either a result or an error frame.
func (s *Server) rpcResult(c *echo.Context, id json.RawMessage, result any, err error) error {
	if err != nil {
		return s.writeRPC(c, protocol.NewError(id, err))
	}
	return s.writeRPC(c, protocol.NewResult(id, result))
}

func (s *Server) writeRPC(c *echo.Context, resp protocol.Response) error {
	return c.JSON(http.StatusOK, resp)
}

// rpcStreamID never returns nil so streaming frames stay JSON-RPC shaped
// even for requests with an absent id.
func rpcStreamID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// bindParams decodes method params. Absent params decode as empty.
func bindParams(raw json.RawMessage, v any) *protocol.Error {
	if len(raw) == 0 {
		return protocol.ErrInvalidParams("params are required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.ErrInvalidParams("%v", err)
	}
	return nil
}

// readBody reads the request body under the configured size cap.
func (s *Server) readBody(c *echo.Context) ([]byte, error) {
	reader := http.MaxBytesReader(c.Response(), c.Request().Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, protocol.ErrInvalidRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, protocol.ErrInvalidRequest("read request body: %v", err)
	}
	return body, nil
}
