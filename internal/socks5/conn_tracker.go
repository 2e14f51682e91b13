package socks5

import (
	"sync"
	"sync/atomic"
)

// sessionTracker tracks every live Session so the server can enforce
// MaxConnections and close every session still open when it stops.
// This is the only state shared across sessions (see spec's
// "shared-resource policy": the event loop handle and ServerContext
// are the sole process-global state, both read-only after startup).
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	count    atomic.Int64
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{
		sessions: make(map[*Session]struct{}),
	}
}

func (t *sessionTracker) add(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s] = struct{}{}
	t.count.Add(1)
}

// remove unregisters a session. Safe to call multiple times for the
// same session (idempotent close paths rely on this).
func (t *sessionTracker) remove(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[s]; ok {
		delete(t.sessions, s)
		t.count.Add(-1)
	}
}

func (t *sessionTracker) Count() int64 {
	return t.count.Load()
}

// closeAll closes every tracked session. Each Session.Close is itself
// idempotent, so this is safe to race against sessions closing
// themselves concurrently.
func (t *sessionTracker) closeAll() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.sessions = make(map[*Session]struct{})
	t.count.Store(0)
	t.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
