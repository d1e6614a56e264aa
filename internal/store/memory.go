package store

import (
	"sync"

	"github.com/openclaw/userbot-server-go/internal/model"
)

// Memory is a Store backed by two maps under one lock. The lock is held only
// for map access, never across upstream calls.
type Memory struct {
	mu      sync.RWMutex
	pending map[string]*model.PendingAuth
	live    map[string]*model.LiveSession
}

func NewMemory() *Memory {
	return &Memory{
		pending: make(map[string]*model.PendingAuth),
		live:    make(map[string]*model.LiveSession),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) InsertPending(p *model.PendingAuth) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[p.SessionID]; ok {
		return ErrExists
	}
	if _, ok := m.live[p.SessionID]; ok {
		return ErrExists
	}
	m.pending[p.SessionID] = p
	return nil
}

func (m *Memory) GetPending(sessionID string) (*model.PendingAuth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pending[sessionID]
	return p, ok
}

func (m *Memory) DeletePending(sessionID string) (*model.PendingAuth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[sessionID]
	if ok {
		delete(m.pending, sessionID)
	}
	return p, ok
}

func (m *Memory) RangePending(fn func(p *model.PendingAuth) bool) {
	m.mu.RLock()
	snapshot := make([]*model.PendingAuth, 0, len(m.pending))
	for _, p := range m.pending {
		snapshot = append(snapshot, p)
	}
	m.mu.RUnlock()

	for _, p := range snapshot {
		if !fn(p) {
			return
		}
	}
}

func (m *Memory) GetLive(sessionID string) (*model.LiveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.live[sessionID]
	return s, ok
}

func (m *Memory) DeleteLive(sessionID string) (*model.LiveSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live[sessionID]
	if ok {
		delete(m.live, sessionID)
	}
	return s, ok
}

func (m *Memory) RangeLive(fn func(s *model.LiveSession) bool) {
	m.mu.RLock()
	snapshot := make([]*model.LiveSession, 0, len(m.live))
	for _, s := range m.live {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

func (m *Memory) Lookup(sessionID string) (*model.PendingAuth, *model.LiveSession) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending[sessionID], m.live[sessionID]
}

func (m *Memory) Promote(live *model.LiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[live.SessionID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.live[live.SessionID]; ok {
		return ErrExists
	}

	// Insert before delete: the id is never absent from both maps.
	m.live[live.SessionID] = live
	delete(m.pending, live.SessionID)
	return nil
}

func (m *Memory) Counts() model.SessionCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.SessionCounts{
		Pending: len(m.pending),
		Live:    len(m.live),
	}
}
