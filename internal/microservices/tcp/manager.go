package tcp

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ConnectionInfo is a read-only snapshot of one live connection
type ConnectionInfo struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	LastMessage string    `json:"last_message"`
	ConnectedAt time.Time `json:"connected_at"`
}

type ConnectionManager struct {
	clients map[string]*ClientConnection
	// key: client ID, value: ClientConnection pointer
	lastReceivedMessage string // most recent accepted payload across all peers
	mu                  sync.RWMutex
	// guards clients and lastReceivedMessage
	// removal of an entry and closing its socket both happen under the write lock,
	// so a broadcast (read lock) never writes to a socket mid-teardown
	logger      *slog.Logger
	sendTimeout time.Duration // write deadline for each broadcast send
}

// constructor for ConnectionManager
func NewConnectionManager(logger *slog.Logger, sendTimeout time.Duration) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	// broadcasts send under the read lock; an unbounded send would stall the registry
	if sendTimeout <= 0 {
		sendTimeout = DefaultServerOptions().SendTimeout
	}
	return &ConnectionManager{
		clients:     make(map[string]*ClientConnection),
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

// method to add a new connection
func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
	m.logger.Info("client_added",
		"client_id", client.ID,
		"remote_addr", client.RemoteAddr(),
		"clients", len(m.clients),
	)
}

// RemoveConnection unregisters the client and closes its socket in one
// critical section. Safe to call more than once.
func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		client.Close()
		return
	}
	delete(m.clients, client.ID)
	client.Close()
	m.logger.Info("client_removed",
		"client_id", client.ID,
		"clients", len(m.clients),
	)
}

// method to close all connections
func (m *ConnectionManager) CloseAllConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		client.Close()
		m.logger.Info("client_connection_closed",
			"client_id", id,
		)
	}
	m.clients = make(map[string]*ClientConnection)
}

// Broadcast relays msg to every registered connection except origin and
// returns how many peers received the whole record. A failed send is logged
// and skipped; it never stops delivery to the remaining peers.
func (m *ConnectionManager) Broadcast(msg *Message, origin *ClientConnection) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	delivered := 0
	for id, c := range m.clients {
		if c == origin {
			continue
		}
		if err := c.Send(msg, m.sendTimeout); err != nil {
			m.logger.Warn("broadcast_send_failed",
				"client_id", id,
				"error", err.Error(),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// method to record the most recent accepted payload
func (m *ConnectionManager) SetLastMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReceivedMessage = text
}

func (m *ConnectionManager) LastMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReceivedMessage
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// List returns a snapshot of all live connections ordered by connect time
func (m *ConnectionManager) List() []ConnectionInfo {
	m.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(m.clients))
	for _, c := range m.clients {
		infos = append(infos, c.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
