package service

import (
	"sync"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"go.uber.org/zap"
)

// Conn is a live real-time connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type boundConn struct {
	conn Conn
	// writes to one websocket must not interleave
	mu sync.Mutex
}

// Registry maps session ids to their single active connection.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*boundConn
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*boundConn),
		logger: logger,
	}
}

// Bind makes conn the connection of sessionID. A connection already bound to the
// session is replaced without being told.
func (r *Registry) Bind(sessionID string, conn Conn) {
	r.mu.Lock()
	_, replaced := r.conns[sessionID]
	r.conns[sessionID] = &boundConn{conn: conn}
	r.mu.Unlock()

	r.logger.Debug("Connection bound", zap.String("session_id", sessionID), zap.Bool("replaced", replaced))
}

func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	delete(r.conns, sessionID)
	r.mu.Unlock()
}

// Release unbinds sessionID only while conn is still the bound connection, so a
// closing socket cannot evict the connection that superseded it.
func (r *Registry) Release(sessionID string, conn Conn) {
	r.mu.Lock()
	if b, ok := r.conns[sessionID]; ok && b.conn == conn {
		delete(r.conns, sessionID)
	}
	r.mu.Unlock()
}

func (r *Registry) Bound(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[sessionID]
	return ok
}

// Send delivers payload to the session's connection. Delivery is best effort:
// failures are logged, never returned. It reports whether the write succeeded.
func (r *Registry) Send(sessionID string, payload any) bool {
	r.mu.RLock()
	b, ok := r.conns[sessionID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Info("Dropping message for unbound session", zap.String("session_id", sessionID))
		return false
	}

	b.mu.Lock()
	err := b.conn.WriteJSON(payload)
	b.mu.Unlock()
	if err != nil {
		r.logger.Warn("Failed to send message", zap.String("session_id", sessionID), zap.Error(err))
		r.Release(sessionID, b.conn)
		return false
	}
	return true
}

// SendToUser delivers payload to every bound session of u and returns how many received it.
func (r *Registry) SendToUser(u *models.User, payload any) int {
	delivered := 0
	for _, sessionID := range u.Sessions {
		if !r.Bound(sessionID) {
			continue
		}
		if r.Send(sessionID, payload) {
			delivered++
		}
	}
	if delivered == 0 {
		r.logger.Info("No live connection for user", zap.String("user_id", u.ID.String()))
	}
	return delivered
}
