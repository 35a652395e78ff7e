package runtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Manager owns the set of live connections, one per registered server.
type Manager struct {
	notifier  Notifier
	admission AdmissionPolicy
	logger    zerolog.Logger

	mu          sync.Mutex
	connections map[string]*Connection
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAdmissionPolicy installs a deploy admission gate checked before any
// deploy is dispatched.
func WithAdmissionPolicy(policy AdmissionPolicy) ManagerOption {
	return func(m *Manager) {
		m.admission = policy
	}
}

// NewManager creates a connection manager publishing change notifications to
// the given notifier.
func NewManager(notifier Notifier, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		notifier:    notifier,
		logger:      logger.With().Str("component", "connection-manager").Logger(),
		connections: make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreateConnection returns the connection for the server registration,
// creating it on first use. The connection starts disconnected; no session is
// established until an operation needs one.
func (m *Manager) GetOrCreateConnection(server *Server, connector Connector) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.connections[server.Name]; ok {
		return conn
	}

	conn := newConnection(server, connector, m, m.notifier, m.logger)
	m.connections[server.Name] = conn
	m.logger.Debug().Str("server", server.Name).Msg("connection registered")
	return conn
}

// Connection returns the live connection for a server name, or nil.
func (m *Manager) Connection(name string) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[name]
}

// Connections returns all registered connections sorted by server name.
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		result = append(result, conn)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].server.Name < result[j].server.Name
	})
	return result
}

// RemoveConnection drops a connection from the set of known connections. It
// does not tear down the session; Connection.Disconnect does both.
func (m *Manager) RemoveConnection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[name]; ok {
		delete(m.connections, name)
		m.logger.Debug().Str("server", name).Msg("connection removed")
	}
}
