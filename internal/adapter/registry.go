package adapter

import (
	"sync"

	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
)

// Registry manages vendor adapters keyed by broker id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.BrokerID]Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.BrokerID]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.BrokerID()] = a
}

// Get retrieves the adapter for a broker, or ErrUnsupportedBroker when none
// is registered.
func (r *Registry) Get(id model.BrokerID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, core.ErrUnsupportedBroker
	}
	return a, nil
}

// GetAll returns all registered adapters.
func (r *Registry) GetAll() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		result = append(result, a)
	}
	return result
}
