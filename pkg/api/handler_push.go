package api

import (
	"context"
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
	"github.com/agentmesh/agentmesh/pkg/push"
)

// Push-config operations shared by both bindings. The task must exist;
// a nil push store reports the capability as unsupported.

func (s *Server) createPushConfig(ctx context.Context, params protocol.CreatePushConfigParams) (*protocol.PushNotificationConfig, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	if s.pushStore == nil {
		return nil, protocol.ErrPushNotificationUnsupported()
	}
	if !s.store.Exists(ctx, params.TaskID) {
		return nil, protocol.ErrTaskNotFound(params.TaskID)
	}
	cfg, err := s.pushStore.Create(ctx, params.TaskID, params.Config)
	if err != nil {
		return nil, protocol.ErrInternal("create push config").WithData(err.Error())
	}
	return cfg, nil
}

func (s *Server) getPushConfig(ctx context.Context, params protocol.PushConfigIDParams) (*protocol.PushNotificationConfig, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	if s.pushStore == nil {
		return nil, protocol.ErrPushNotificationUnsupported()
	}
	cfg, err := s.pushStore.Get(ctx, params.TaskID, params.ConfigID)
	if err != nil {
		if errors.Is(err, push.ErrConfigNotFound) {
			return nil, protocol.ErrInvalidParams("push config %s not found for task %s", params.ConfigID, params.TaskID)
		}
		return nil, protocol.ErrInternal("get push config").WithData(err.Error())
	}
	return cfg, nil
}

func (s *Server) listPushConfigs(ctx context.Context, params protocol.ListPushConfigsParams) ([]protocol.PushNotificationConfig, error) {
	if perr := params.Validate(); perr != nil {
		return nil, perr
	}
	if s.pushStore == nil {
		return nil, protocol.ErrPushNotificationUnsupported()
	}
	cfgs, err := s.pushStore.List(ctx, params.TaskID)
	if err != nil {
		return nil, protocol.ErrInternal("list push configs").WithData(err.Error())
	}
	return cfgs, nil
}

func (s *Server) deletePushConfig(ctx context.Context, params protocol.PushConfigIDParams) error {
	if perr := params.Validate(); perr != nil {
		return perr
	}
	if s.pushStore == nil {
		return protocol.ErrPushNotificationUnsupported()
	}
	if err := s.pushStore.Delete(ctx, params.TaskID, params.ConfigID); err != nil {
		if errors.Is(err, push.ErrConfigNotFound) {
			return protocol.ErrInvalidParams("push config %s not found for task %s", params.ConfigID, params.TaskID)
		}
		return protocol.ErrInternal("delete push config").WithData(err.Error())
	}
	return nil
}

// REST handlers.

func (s *Server) createPushConfigHandler(c *echo.Context) error {
	var cfg protocol.PushNotificationConfig
	if err := s.bindBody(c, &cfg); err != nil {
		return writeRESTError(c, err)
	}
	created, err := s.createPushConfig(c.Request().Context(), protocol.CreatePushConfigParams{
		TaskID: c.Param("id"),
		Config: cfg,
	})
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, created)
}

func (s *Server) getPushConfigHandler(c *echo.Context) error {
	cfg, err := s.getPushConfig(c.Request().Context(), protocol.PushConfigIDParams{
		TaskID:   c.Param("id"),
		ConfigID: c.Param("configId"),
	})
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) listPushConfigsHandler(c *echo.Context) error {
	cfgs, err := s.listPushConfigs(c.Request().Context(), protocol.ListPushConfigsParams{
		TaskID: c.Param("id"),
	})
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, cfgs)
}

func (s *Server) deletePushConfigHandler(c *echo.Context) error {
	err := s.deletePushConfig(c.Request().Context(), protocol.PushConfigIDParams{
		TaskID:   c.Param("id"),
		ConfigID: c.Param("configId"),
	})
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
