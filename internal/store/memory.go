package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/newthinker/brokerhub/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*model.Connection
	accounts    map[uuid.UUID]*model.BrokerAccount
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[uuid.UUID]*model.Connection),
		accounts:    make(map[uuid.UUID]*model.BrokerAccount),
	}
}

func (s *MemoryStore) CreateConnection(_ context.Context, c *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConnection(_ context.Context, id, userID uuid.UUID) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListConnections(_ context.Context, userID uuid.UUID) ([]model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Connection
	for _, c := range s.connections {
		if c.UserID == userID && c.Status != model.ConnectionRevoked {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateConnection(_ context.Context, c *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *MemoryStore) FindPendingConnection(_ context.Context, userID uuid.UUID, brokerID model.BrokerID) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Connection
	for _, c := range s.connections {
		if c.UserID == userID && c.BrokerID == brokerID && c.Status == model.ConnectionPending {
			if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) DeletePendingConnections(_ context.Context, userID uuid.UUID, brokerID model.BrokerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.connections {
		if c.UserID == userID && c.BrokerID == brokerID && c.Status == model.ConnectionPending {
			delete(s.connections, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.BrokerAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, userID uuid.UUID, brokerID model.BrokerID) ([]model.BrokerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BrokerAccount
	for _, a := range s.accounts {
		if a.UserID != userID {
			continue
		}
		if brokerID != "" && a.BrokerID != brokerID {
			continue
		}
		conn, ok := s.connections[a.ConnectionID]
		if !ok || conn.Status != model.ConnectionActive {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}
