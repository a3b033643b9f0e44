package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/eventstore"
)

// taskChannelPrefix namespaces WebSocket channels so other channel kinds can
// be added without breaking clients.
const taskChannelPrefix = "task:"

// ClientMessage is a command sent by a WebSocket client.
type ClientMessage struct {
	Action      string `json:"action"`
	Channel     string `json:"channel,omitempty"`
	LastEventID *int   `json:"last_event_id,omitempty"`
}

// wsHandler serves GET /v1/ws. The connection speaks a small JSON command
// protocol: subscribe, unsubscribe, catchup, ping.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return nil
	}

	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}

// ConnectionManager tracks WebSocket connections and their per-task
// subscriptions.
type ConnectionManager struct {
	store        *eventstore.FileStore
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*wsConnection
}

// wsConnection is a single WebSocket client.
//
// subscriptions is accessed without a lock: subscribe, unsubscribe, and the
// deferred cleanup all run on the goroutine that owns the read loop. Writes
// to the socket itself come from pump goroutines too, so sends go through
// writeMu.
type wsConnection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu       sync.Mutex
	subscriptions map[string]context.CancelFunc
}

func NewConnectionManager(store *eventstore.FileStore, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		store:        store,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*wsConnection),
	}
}

// HandleConnection runs the read loop for one connection. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &wsConnection{
		id:            uuid.New().String(),
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]context.CancelFunc),
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.id, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(c *wsConnection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		taskID, ok := taskChannel(msg.Channel)
		if !ok {
			m.sendChannelError(c, msg.Channel, "channel must be task:<id>")
			return
		}
		m.subscribe(c, msg.Channel, taskID, msg.LastEventID)

	case "unsubscribe":
		if cancel, ok := c.subscriptions[msg.Channel]; ok {
			cancel()
			delete(c.subscriptions, msg.Channel)
		}

	case "catchup":
		taskID, ok := taskChannel(msg.Channel)
		if !ok {
			m.sendChannelError(c, msg.Channel, "channel must be task:<id>")
			return
		}
		after := -1
		if msg.LastEventID != nil {
			after = *msg.LastEventID
		}
		m.catchup(c, msg.Channel, taskID, after)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})

	default:
		m.sendJSON(c, map[string]string{
			"type":    "error",
			"message": "unknown action: " + msg.Action,
		})
	}
}

// subscribe opens a live tail on the task's event log and relays it until
// the stream ends or the client unsubscribes. Resubscribing to the same
// channel replaces the previous tail.
func (m *ConnectionManager) subscribe(c *wsConnection, channel, taskID string, lastEventID *int) {
	after := -1
	if lastEventID != nil {
		after = *lastEventID
	}

	pumpCtx, cancel := context.WithCancel(c.ctx)
	stream, err := m.store.Subscribe(pumpCtx, taskID, after)
	if err != nil {
		cancel()
		m.sendChannelError(c, channel, "failed to subscribe to channel")
		return
	}

	if prev, ok := c.subscriptions[channel]; ok {
		prev()
	}
	c.subscriptions[channel] = cancel

	m.sendJSON(c, map[string]string{
		"type":    "subscription.confirmed",
		"channel": channel,
	})

	go func() {
		defer cancel()
		for env := range stream {
			if err := m.sendEvent(c, channel, env); err != nil {
				return
			}
		}
		if pumpCtx.Err() != nil {
			return // unsubscribed or connection closed
		}
		m.sendJSON(c, map[string]string{
			"type":    "stream.complete",
			"channel": channel,
		})
	}()
}

// catchup replays stored events after last_event_id as a one-shot, without
// opening a live tail.
func (m *ConnectionManager) catchup(c *wsConnection, channel, taskID string, afterVersion int) {
	envs, err := m.store.Read(c.ctx, taskID, afterVersion+1)
	if err != nil {
		m.sendChannelError(c, channel, "catchup failed")
		return
	}
	for _, env := range envs {
		if err := m.sendEvent(c, channel, env); err != nil {
			return
		}
	}
}

func (m *ConnectionManager) sendEvent(c *wsConnection, channel string, env eventstore.Envelope) error {
	frame := map[string]any{
		"type":    "task.event",
		"channel": channel,
		"id":      env.Version,
		"event":   env.Event,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("Failed to marshal event frame", "connection_id", c.id, "error", err)
		return err
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send to WebSocket client", "connection_id", c.id, "error", err)
		return err
	}
	return nil
}

func (m *ConnectionManager) sendChannelError(c *wsConnection, channel, message string) {
	m.sendJSON(c, map[string]string{
		"type":    "subscription.error",
		"channel": channel,
		"message": message,
	})
}

func (m *ConnectionManager) register(c *wsConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.id] = c
}

func (m *ConnectionManager) unregister(c *wsConnection) {
	for _, cancel := range c.subscriptions {
		cancel()
	}

	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *wsConnection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.id, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.id, "error", err)
	}
}

// sendRaw writes one text frame with a write timeout. Serialized because
// pump goroutines and the read loop both send.
func (m *ConnectionManager) sendRaw(c *wsConnection, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func taskChannel(channel string) (taskID string, ok bool) {
	taskID, ok = strings.CutPrefix(channel, taskChannelPrefix)
	if !ok || taskID == "" {
		return "", false
	}
	return taskID, true
}
