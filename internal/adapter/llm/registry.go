package llm

import (
	"fmt"
	"sort"
	"sync"

	"chat-orchestrator/internal/domain"
)

// Registry maps model names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]domain.ModelClient
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]domain.ModelClient)}
}

// Register adds a client under its own name. Re-registering a name
// replaces the previous client.
func (r *Registry) Register(client domain.ModelClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Name()] = client
}

// Resolve returns the client for the requested model name.
func (r *Registry) Resolve(model string) (domain.ModelClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[model]
	if !ok {
		return nil, fmt.Errorf("no client registered for model %q", model)
	}
	return client, nil
}

// Models lists registered model names in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
