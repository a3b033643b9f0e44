package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// agentCardHandler serves the public agent card at the well-known path.
func (s *Server) agentCardHandler(c *echo.Context) error {
	card, err := s.card.Card(c.Request().Context(), c.Request())
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, card)
}

// extendedCardHandler serves GET /v1/card, the REST binding of
// GetExtendedAgentCard.
func (s *Server) extendedCardHandler(c *echo.Context) error {
	card, err := s.extendedAgentCard(c.Request().Context(), c.Request())
	if err != nil {
		return writeRESTError(c, err)
	}
	return c.JSON(http.StatusOK, card)
}

func (s *Server) extendedAgentCard(ctx context.Context, r *http.Request) (*protocol.AgentCard, error) {
	if s.extendedCard == nil {
		return nil, protocol.ErrExtendedCardNotConfigured()
	}
	return s.extendedCard.Card(ctx, r)
}
