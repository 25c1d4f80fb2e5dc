package websocket

import (
	"sync"

	"codorachat/pkg/interfaces"
)

// Registry tracks admitted connections and the username each belongs to.
// A user may hold several connections at once (one per device).
type Registry struct {
	mu              sync.RWMutex
	connections     map[string]interfaces.Connection // connectionID -> Connection
	userConnections map[string]map[string]struct{}   // username -> set of connectionIDs
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections:     make(map[string]interfaces.Connection),
		userConnections: make(map[string]map[string]struct{}),
	}
}

// Admit registers a connection under its username. It fails with
// ErrAlreadyClosed when the connection was torn down before admission completed.
func (r *Registry) Admit(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.IsClosed() {
		return ErrAlreadyClosed
	}

	id := conn.ID()
	if _, exists := r.connections[id]; exists {
		return ErrDuplicateAdmission
	}

	username := conn.Username()
	r.connections[id] = conn
	if r.userConnections[username] == nil {
		r.userConnections[username] = make(map[string]struct{})
	}
	r.userConnections[username][id] = struct{}{}

	return nil
}

// Remove unregisters a connection. It is idempotent: removing an unknown
// connection reports removed=false. remaining is the number of connections
// the owning user still holds after the removal.
func (r *Registry) Remove(connectionID string) (username string, remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return "", 0, false
	}

	username = conn.Username()
	delete(r.connections, connectionID)

	if ids, ok := r.userConnections[username]; ok {
		delete(ids, connectionID)
		remaining = len(ids)
		if remaining == 0 {
			delete(r.userConnections, username)
		}
	}

	return username, remaining, true
}

// BroadcastTargets returns a snapshot of every admitted, still-open connection
// except excludeConnectionID. Pass "" to exclude nothing. Order is unspecified.
func (r *Registry) BroadcastTargets(excludeConnectionID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]interfaces.Connection, 0, len(r.connections))
	for id, conn := range r.connections {
		if id == excludeConnectionID || conn.IsClosed() {
			continue
		}
		targets = append(targets, conn)
	}

	return targets
}

// CloseAll closes every admitted connection. Entries are left for the read
// loops to remove through the normal disconnect path.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}

// GetConnection returns an admitted connection by ID
func (r *Registry) GetConnection(connectionID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connectionID]
	return conn, exists
}

// UserConnectionCount returns how many connections a user currently holds
func (r *Registry) UserConnectionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userConnections[username])
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"online_users":      len(r.userConnections),
	}
}
