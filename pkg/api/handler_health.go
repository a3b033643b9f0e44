package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/version"
)

type healthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Tasks             int    `json:"tasks"`
	ActiveConnections int    `json:"activeConnections"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	ids, err := s.store.TaskIDs()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{
			Status:  "degraded",
			Version: version.Full(),
		})
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:            "ok",
		Version:           version.Full(),
		Tasks:             len(ids),
		ActiveConnections: s.connManager.ActiveConnections(),
	})
}
