package mcp

import (
	"sync"

	"github.com/rendis/flowcanvas/internal/designer"
)

// SessionRegistry tracks open designer sessions and the MCP client that
// opened each one, so session events can be pushed back to it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*designer.Session
	owners   map[string]string // designer session ID → MCP client session ID
	latest   string
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*designer.Session),
		owners:   make(map[string]string),
	}
}

// Register adds s and makes it the default session. An empty owner leaves
// the session without a notification target.
func (r *SessionRegistry) Register(s *designer.Session, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	if owner != "" {
		r.owners[s.ID()] = owner
	}
	r.latest = s.ID()
}

// Get returns the session with id, or the most recently registered one
// when id is empty.
func (r *SessionRegistry) Get(id string) (*designer.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.latest
	}
	s, ok := r.sessions[id]
	return s, ok
}

// OwnerOf returns the MCP client session that opened the designer session.
func (r *SessionRegistry) OwnerOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	return owner, ok
}

// Disconnect drops ownership for every session opened by clientID. The
// sessions stay open so their drafts and state survive a reconnect.
func (r *SessionRegistry) Disconnect(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, owner := range r.owners {
		if owner == clientID {
			delete(r.owners, sid)
		}
	}
}

// Sessions returns every open session.
func (r *SessionRegistry) Sessions() []*designer.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*designer.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
