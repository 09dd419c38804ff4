package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"retro/internal/board"
)

// Manager connects sessions and finds them again by connection id.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(cfg Config) *Manager {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = board.DefaultHistorySize
	}
	return &Manager{cfg: cfg, sessions: make(map[uuid.UUID]*Session)}
}

// Connect opens a session for userID on boardID. It fails with
// ErrBoardNotFound or ErrAccessDenied before subscribing to anything. The
// session ends when ctx ends, when Close is called or when access is lost.
func (m *Manager) Connect(ctx context.Context, boardID, userID uuid.UUID) (*Session, error) {
	s, err := connect(ctx, m.cfg, boardID, userID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	s.start(m.remove)
	return s, nil
}

func (m *Manager) Get(connID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
}

// Close ends every session and waits for them to finish.
func (m *Manager) Close() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()
	for _, s := range open {
		s.Close()
	}
	for _, s := range open {
		<-s.Done()
	}
}
