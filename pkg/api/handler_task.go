package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// splitTaskVerb separates a custom-verb path segment like
// "task-123:cancel" into the task id and verb.
func splitTaskVerb(segment string) (id, verb string) {
	id, verb, _ = strings.Cut(segment, ":")
	return id, verb
}

// getTaskHandler serves GET /v1/tasks/{id} and the custom verb
// GET /v1/tasks/{id}:subscribe.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id, verb := splitTaskVerb(c.Param("id"))
	switch verb {
	case "":
		return s.restGetTask(c, id)
	case "subscribe":
		return s.restSubscribeTask(c, id)
	default:
		return writeRESTError(c, protocol.ErrMethodNotFound(verb))
	}
}

// taskVerbHandler serves POST /v1/tasks/{id}:cancel.
func (s *Server) taskVerbHandler(c *echo.Context) error {
	id, verb := splitTaskVerb(c.Param("id"))
	if verb != "cancel" {
		return writeRESTError(c, protocol.ErrMethodNotFound(verb))
	}
	task, err := s.manager.CancelTask(c.Request().Context(), id)
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) restGetTask(c *echo.Context, id string) error {
	params := protocol.GetTaskParams{ID: id}
	historyLength, err := queryInt(c, "historyLength")
	if err != nil {
		return writeRESTError(c, err)
	}
	params.HistoryLength = historyLength

	task, err := s.manager.GetTask(c.Request().Context(), params)
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) restSubscribeTask(c *echo.Context, id string) error {
	afterVersion := -1
	if last, err := queryInt(c, "lastEventId"); err != nil {
		return writeRESTError(c, err)
	} else if last != nil {
		afterVersion = *last
	}

	stream, err := s.manager.SubscribeToTask(c.Request().Context(), id, afterVersion)
	if err != nil {
		return writeRESTError(c, err)
	}
	return s.streamSSE(c, nil, stream)
}

// listTasksHandler serves GET /v1/tasks with the filter expressed as query
// parameters.
func (s *Server) listTasksHandler(c *echo.Context) error {
	params := protocol.ListTasksParams{
		ContextID: c.QueryParam("contextId"),
		Status:    protocol.TaskState(c.QueryParam("status")),
		PageToken: c.QueryParam("pageToken"),
	}

	if pageSize, err := queryInt(c, "pageSize"); err != nil {
		return writeRESTError(c, err)
	} else if pageSize != nil {
		params.PageSize = *pageSize
	}
	historyLength, err := queryInt(c, "historyLength")
	if err != nil {
		return writeRESTError(c, err)
	}
	params.HistoryLength = historyLength

	if raw := c.QueryParam("statusTimestampAfter"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return writeRESTError(c, protocol.ErrInvalidParams("statusTimestampAfter must be RFC 3339"))
		}
		params.StatusTimestampAfter = &ts
	}
	if raw := c.QueryParam("includeArtifacts"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return writeRESTError(c, protocol.ErrInvalidParams("includeArtifacts must be a boolean"))
		}
		params.IncludeArtifacts = include
	}

	result, err := s.manager.ListTasks(c.Request().Context(), params)
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// queryInt parses an optional integer query parameter.
func queryInt(c *echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, protocol.ErrInvalidParams("%s must be an integer", name)
	}
	return &n, nil
}
