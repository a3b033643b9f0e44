// Package api is the protocol dispatcher: it exposes the task engine over
// a JSON-RPC 2.0 endpoint, a REST binding, SSE streams, and a WebSocket
// subscription channel, with protocol version negotiation and error
// mapping.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentmesh/agentmesh/pkg/config"
	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/protocol"
	"github.com/agentmesh/agentmesh/pkg/push"
	"github.com/agentmesh/agentmesh/pkg/taskmanager"
	"github.com/agentmesh/agentmesh/pkg/version"
)

// CardProvider supplies an agent card for a request. Implementations may
// inspect the request for authentication and return
// protocol.ErrAuthenticationRequired.
type CardProvider interface {
	Card(ctx context.Context, r *http.Request) (*protocol.AgentCard, error)
}

// StaticCard serves a fixed card to every caller.
type StaticCard struct {
	AgentCard protocol.AgentCard
}

func (p *StaticCard) Card(ctx context.Context, r *http.Request) (*protocol.AgentCard, error) {
	card := p.AgentCard
	return &card, nil
}

// Server is the HTTP server for all protocol bindings.
type Server struct {
	echo    *echo.Echo
	httpSrv *http.Server
	cfg     *config.Config

	manager     *taskmanager.Manager
	store       *eventstore.FileStore
	pushStore   push.Store
	connManager *ConnectionManager

	card         CardProvider
	extendedCard CardProvider
}

// NewServer wires the dispatcher. Push configs default to an in-memory
// store and the public card to a minimal generated one; both are
// replaceable before Start.
func NewServer(cfg *config.Config, store *eventstore.FileStore, manager *taskmanager.Manager) *Server {
	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		manager:     manager,
		store:       store,
		pushStore:   push.NewMemoryStore(),
		connManager: NewConnectionManager(store, cfg.WSWriteTimeout),
		card:        &StaticCard{AgentCard: defaultCard(cfg)},
	}
	s.setupRoutes()
	return s
}

// SetAgentCard replaces the public agent card provider.
func (s *Server) SetAgentCard(p CardProvider) { s.card = p }

// SetExtendedAgentCard configures the authenticated extended card. Left
// unset, GetExtendedAgentCard fails with EXTENDED_AGENT_CARD_NOT_CONFIGURED.
func (s *Server) SetExtendedAgentCard(p CardProvider) { s.extendedCard = p }

// SetPushStore replaces the push-config store. A nil store disables push
// config operations with PUSH_NOTIFICATION_NOT_SUPPORTED.
func (s *Server) SetPushStore(store push.Store) { s.pushStore = store }

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(s.versionNegotiation)

	e.GET("/health", s.healthHandler)
	e.GET("/.well-known/agent.json", s.agentCardHandler)

	// JSON-RPC binding.
	e.POST("/a2a", s.rpcHandler)

	// REST binding. Custom-verb paths like /v1/message:send arrive as one
	// path segment; the verb is split from the param value because a
	// literal ':' in a route pattern would read as a parameter marker.
	e.POST("/v1/:verb", s.messageVerbHandler)
	e.GET("/v1/tasks", s.listTasksHandler)
	e.GET("/v1/tasks/:id", s.getTaskHandler)
	e.POST("/v1/tasks/:id", s.taskVerbHandler)
	e.GET("/v1/tasks/:id/pushNotificationConfigs", s.listPushConfigsHandler)
	e.POST("/v1/tasks/:id/pushNotificationConfigs", s.createPushConfigHandler)
	e.GET("/v1/tasks/:id/pushNotificationConfigs/:configId", s.getPushConfigHandler)
	e.DELETE("/v1/tasks/:id/pushNotificationConfigs/:configId", s.deletePushConfigHandler)
	e.GET("/v1/card", s.extendedCardHandler)

	// WebSocket binding.
	e.GET("/v1/ws", s.wsHandler)
}

// Handler returns the HTTP handler with OTel instrumentation applied at
// the outermost layer.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.echo, "a2a-server")
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// defaultCard builds the minimal public card served until the embedding
// application provides its own.
func defaultCard(cfg *config.Config) protocol.AgentCard {
	return protocol.AgentCard{
		ProtocolVersion:    "1.0",
		Name:               "agentmesh",
		Description:        "A2A task engine",
		URL:                "http://localhost:" + cfg.HTTPPort + "/a2a",
		PreferredTransport: "JSONRPC",
		Version:            version.Version,
		Capabilities: protocol.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
		},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}
}
