package server

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// connInfo describes one client connection
type connInfo struct {
	ID         uint64
	Transport  string // "rac" or "wrac"
	RemoteAddr string
	logger     zerolog.Logger
}

// SessionManager tracks open connections so Stop can close them. WebSocket
// connections are hijacked from net/http and are not closed by Shutdown.
type SessionManager struct {
	nextID  uint64
	mu      sync.RWMutex
	conns   map[uint64]io.Closer
	metrics *Metrics
}

// NewSessionManager creates a new session manager
func NewSessionManager(metrics *Metrics) *SessionManager {
	return &SessionManager{
		conns:   make(map[uint64]io.Closer),
		nextID:  1,
		metrics: metrics,
	}
}

// Add registers a connection and returns its info
func (sm *SessionManager) Add(transport, remoteAddr string, conn io.Closer, logger zerolog.Logger) *connInfo {
	id := atomic.AddUint64(&sm.nextID, 1) - 1

	sm.mu.Lock()
	sm.conns[id] = conn
	count := len(sm.conns)
	sm.mu.Unlock()

	sm.metrics.RecordActiveConnections(count)

	return &connInfo{
		ID:         id,
		Transport:  transport,
		RemoteAddr: remoteAddr,
		logger: logger.With().
			Uint64("conn", id).
			Str("transport", transport).
			Str("remote", remoteAddr).
			Logger(),
	}
}

// Remove forgets a connection
func (sm *SessionManager) Remove(id uint64) {
	sm.mu.Lock()
	delete(sm.conns, id)
	count := len(sm.conns)
	sm.mu.Unlock()

	sm.metrics.RecordActiveConnections(count)
}

// Count returns the number of open connections
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.conns)
}

// CloseAll closes every tracked connection
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	conns := sm.conns
	sm.conns = make(map[uint64]io.Closer)
	sm.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	sm.metrics.RecordActiveConnections(0)
}
