package orchestrator

import (
    "context"
    "log/slog"
    "sync"
    "time"

    "github.com/amsaid/docpilot/agent_type"
)

// managedSession pairs the session record with the lock that serializes its
// turns. The lifecycle fields (closed, running, lastActive, cancel) are
// guarded by the store mutex rather than the turn lock, so CloseSession and
// ReapIdle never wait behind a running turn.
type managedSession struct {
    mu      sync.Mutex
    session *agent_type.Session

    closed     bool
    running    bool
    lastActive time.Time
    cancel     context.CancelFunc
}

// SessionStore owns every live session. Turns within one session run
// strictly one at a time; closing a session cancels its in-flight turn.
type SessionStore struct {
    mu          sync.RWMutex
    sessions    map[string]*managedSession
    idleTimeout time.Duration
    logger      *slog.Logger
}

func NewSessionStore(idleTimeout time.Duration, logger *slog.Logger) *SessionStore {
    return &SessionStore{
        sessions:    make(map[string]*managedSession),
        idleTimeout: idleTimeout,
        logger:      logger,
    }
}

// acquire returns the managed session, creating it on first use.
func (s *SessionStore) acquire(id string) *managedSession {
    s.mu.Lock()
    defer s.mu.Unlock()
    ms, ok := s.sessions[id]
    if !ok {
        now := time.Now()
        ms = &managedSession{
            session: &agent_type.Session{
                ID:        id,
                State:     agent_type.SessionIdle,
                CreatedAt: now,
            },
            lastActive: now,
        }
        s.sessions[id] = ms
    }
    return ms
}

func (s *SessionStore) isClosed(ms *managedSession) bool {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return ms.closed
}

// beginTurn registers the turn's cancel func and marks the session running.
func (s *SessionStore) beginTurn(ms *managedSession, cancel context.CancelFunc) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ms.running = true
    ms.lastActive = time.Now()
    ms.cancel = cancel
}

func (s *SessionStore) endTurn(ms *managedSession) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ms.running = false
    ms.lastActive = time.Now()
    ms.cancel = nil
}

// Snapshot returns a copy of the session for read-only callers.
func (s *SessionStore) Snapshot(id string) (agent_type.Session, bool) {
    s.mu.RLock()
    ms, ok := s.sessions[id]
    var state agent_type.SessionState
    var lastActive time.Time
    if ok {
        switch {
        case ms.closed:
            state = agent_type.SessionClosed
        case ms.running:
            state = agent_type.SessionRunning
        default:
            state = agent_type.SessionIdle
        }
        lastActive = ms.lastActive
    }
    s.mu.RUnlock()
    if !ok {
        return agent_type.Session{}, false
    }

    ms.mu.Lock()
    defer ms.mu.Unlock()
    copied := *ms.session
    copied.Trace = append(agent_type.AgentTrace(nil), ms.session.Trace...)
    copied.State = state
    copied.LastActiveAt = lastActive
    return copied, true
}

// CloseSession marks the session closed and cancels its in-flight turn, if
// any. Closing an unknown session is a no-op.
func (s *SessionStore) CloseSession(id string) {
    s.mu.Lock()
    ms, ok := s.sessions[id]
    var cancel context.CancelFunc
    if ok {
        ms.closed = true
        cancel = ms.cancel
    }
    s.mu.Unlock()
    if !ok {
        return
    }
    if cancel != nil {
        cancel()
    }
    s.logger.Info("Session closed", slog.String("session_id", id))
}

// ReapIdle removes closed sessions and sessions inactive longer than the
// idle timeout. A running session is never reaped. Returns how many
// sessions were removed.
func (s *SessionStore) ReapIdle(now time.Time) int {
    s.mu.Lock()
    defer s.mu.Unlock()

    reaped := 0
    for id, ms := range s.sessions {
        if ms.running {
            continue
        }
        if ms.closed || now.Sub(ms.lastActive) > s.idleTimeout {
            delete(s.sessions, id)
            reaped++
        }
    }
    if reaped > 0 {
        s.logger.Info("Reaped idle sessions", slog.Int("count", reaped))
    }
    return reaped
}
