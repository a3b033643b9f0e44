// Package push stores per-task push-notification configurations. Delivery
// itself is out of scope; the store backs the protocol's config CRUD.
package push

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// ErrConfigNotFound indicates no config with the given id exists for the
// task.
var ErrConfigNotFound = errors.New("push notification config not found")

// Store is the push-config persistence contract.
type Store interface {
	Create(ctx context.Context, taskID string, cfg protocol.PushNotificationConfig) (*protocol.PushNotificationConfig, error)
	Get(ctx context.Context, taskID, configID string) (*protocol.PushNotificationConfig, error)
	List(ctx context.Context, taskID string) ([]protocol.PushNotificationConfig, error)
	Delete(ctx context.Context, taskID, configID string) error
}

// MemoryStore keeps configs in process memory, keyed (taskId, configId).
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]protocol.PushNotificationConfig
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: map[string]map[string]protocol.PushNotificationConfig{}}
}

// Create registers a config. A missing config id is generated; an existing
// (taskId, configId) pair is overwritten.
func (s *MemoryStore) Create(ctx context.Context, taskID string, cfg protocol.PushNotificationConfig) (*protocol.PushNotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.TaskID = taskID
	if cfg.ConfigID == "" {
		cfg.ConfigID = uuid.NewString()
	}
	byID, ok := s.configs[taskID]
	if !ok {
		byID = map[string]protocol.PushNotificationConfig{}
		s.configs[taskID] = byID
	}
	byID[cfg.ConfigID] = cfg
	out := cfg
	return &out, nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID, configID string) (*protocol.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[taskID][configID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	out := cfg
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context, taskID string) ([]protocol.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.configs[taskID]
	out := make([]protocol.PushNotificationConfig, 0, len(byID))
	for _, cfg := range byID {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[taskID][configID]; !ok {
		return ErrConfigNotFound
	}
	delete(s.configs[taskID], configID)
	return nil
}
