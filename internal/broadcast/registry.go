package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
)

// Client is one connected consumer of broadcast messages. Send must not
// block; an error means the connection is dead.
type Client interface {
	ID() string
	Send(msg []byte) error
	Close()
}

// Registry tracks connected clients and the scopes they are attached to.
// Readers get copies, so a client leaving mid-broadcast never disturbs an
// iteration in progress.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	scopes  map[string]map[string]struct{} // scope -> client IDs
	joined  map[string]map[string]struct{} // client ID -> scopes
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
		scopes:  make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Register adds a client. Registering an ID twice replaces the old handle.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.ID()] = c
	if _, ok := r.joined[c.ID()]; !ok {
		r.joined[c.ID()] = make(map[string]struct{})
	}
	slog.Debug("client registered", "client_id", c.ID())
}

// Unregister removes a client and all of its attachments. It reports whether
// the client was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false
	}
	for scope := range r.joined[id] {
		r.removeFromScope(scope, id)
	}
	delete(r.joined, id)
	delete(r.clients, id)

	slog.Debug("client unregistered", "client_id", id)
	return true
}

// Attach subscribes a registered client to a scope.
func (r *Registry) Attach(id, scope string) error {
	if scope == "" {
		return fmt.Errorf("empty scope")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return fmt.Errorf("client %s not registered", id)
	}
	members, ok := r.scopes[scope]
	if !ok {
		members = make(map[string]struct{})
		r.scopes[scope] = members
	}
	members[id] = struct{}{}
	r.joined[id][scope] = struct{}{}
	return nil
}

// Detach removes a client from a scope. Detaching a scope the client never
// attached is a no-op.
func (r *Registry) Detach(id, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scopes, ok := r.joined[id]; ok {
		delete(scopes, scope)
	}
	r.removeFromScope(scope, id)
}

func (r *Registry) removeFromScope(scope, id string) {
	members, ok := r.scopes[scope]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.scopes, scope)
	}
}

// Clients returns a snapshot of every registered client.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Attached returns a snapshot of the clients attached to scope.
func (r *Registry) Attached(scope string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.scopes[scope]
	out := make([]Client, 0, len(members))
	for id := range members {
		out = append(out, r.clients[id])
	}
	return out
}

// Scopes returns the scopes a client is attached to.
func (r *Registry) Scopes(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[id]))
	for s := range r.joined[id] {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and unregisters every client.
func (r *Registry) CloseAll() {
	for _, c := range r.Clients() {
		r.Unregister(c.ID())
		c.Close()
	}
}
