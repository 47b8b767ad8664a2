package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/facetalk/internal/observe"
)

// SessionInfo holds metadata about a live client session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// RemoteAddr is the client address the websocket was accepted from.
	RemoteAddr string
}

// managed is what the manager needs from a session.
type managed interface {
	Info() SessionInfo
	SetAvatarFlags(autoAnimate, reducedMotion bool)
	Close()
}

// SessionManager tracks live websocket sessions and fans out runtime
// setting changes to them. All exported methods are safe for concurrent use.
type SessionManager struct {
	metrics *observe.Metrics

	mu            sync.Mutex
	sessions      map[string]managed
	autoAnimate   bool
	reducedMotion bool
}

// NewSessionManager creates an empty SessionManager. m may be nil.
func NewSessionManager(m *observe.Metrics) *SessionManager {
	return &SessionManager{
		metrics:  m,
		sessions: make(map[string]managed),
	}
}

// Add registers s and applies the current avatar flags to it.
func (sm *SessionManager) Add(s managed) {
	sm.mu.Lock()
	info := s.Info()
	sm.sessions[info.SessionID] = s
	auto, reduced := sm.autoAnimate, sm.reducedMotion
	n := len(sm.sessions)
	sm.mu.Unlock()

	s.SetAvatarFlags(auto, reduced)
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("session started", "session_id", info.SessionID, "remote_addr", info.RemoteAddr, "active", n)
}

// Remove unregisters the session with the given id. Unknown ids are ignored.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	n := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return
	}
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session stopped", "session_id", id, "active", n)
}

// SetAvatarFlags updates the defaults for new sessions and applies them to
// every live session.
func (sm *SessionManager) SetAvatarFlags(autoAnimate, reducedMotion bool) {
	sm.mu.Lock()
	sm.autoAnimate, sm.reducedMotion = autoAnimate, reducedMotion
	live := sm.snapshotLocked()
	sm.mu.Unlock()

	for _, s := range live {
		s.SetAvatarFlags(autoAnimate, reducedMotion)
	}
}

// AvatarFlags returns the flags applied to new sessions.
func (sm *SessionManager) AvatarFlags() (autoAnimate, reducedMotion bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.autoAnimate, sm.reducedMotion
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Info returns metadata for every live session.
func (sm *SessionManager) Info() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info())
	}
	return out
}

// CloseAll closes every live session concurrently and returns once each
// close handshake has finished or timed out. Sessions remove themselves
// once their loops have exited.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	live := sm.snapshotLocked()
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range live {
		wg.Go(s.Close)
	}
	wg.Wait()
}

func (sm *SessionManager) snapshotLocked() []managed {
	out := make([]managed, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}
