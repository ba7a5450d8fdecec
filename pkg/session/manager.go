package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"formpilot/pkg/logx"
)

// Manager owns the live sessions and writes them through to a Store.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	store    Store
	logger   *logx.Logger
}

func NewManager(store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		store:    store,
		logger:   logx.NewLogger("sessions"),
	}
}

// Get returns the session of userID, loading it from the store or creating it on first contact.
func (m *Manager) Get(ctx context.Context, userID, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		s.SetChatID(chatID)
		return s, nil
	}

	snap, err := m.store.LoadSession(ctx, userID)
	switch {
	case err == nil:
		s := FromSnapshot(snap)
		s.SetChatID(chatID)
		m.sessions[userID] = s
		return s, nil
	case errors.Is(err, ErrNotFound):
		s := New(userID, chatID)
		m.sessions[userID] = s
		m.logger.Info("created session for user %d", userID)
		return s, nil
	default:
		return nil, fmt.Errorf("failed to load session %d: %w", userID, err)
	}
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	snap, err := m.store.LoadSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded it meanwhile.
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	s = FromSnapshot(snap)
	m.sessions[userID] = s
	return s, nil
}

// Persist writes the session snapshot to the store.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	if err := m.store.SaveSession(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist session %d: %w", s.UserID, err)
	}
	return nil
}

// Reset tears the session down and removes it from the store.
func (m *Manager) Reset(ctx context.Context, s *Session) error {
	if err := s.Reset(); err != nil {
		m.logger.Warn("user %d: %v", s.UserID, err)
	}
	if err := m.store.DeleteSession(ctx, s.UserID); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", s.UserID, err)
	}
	return nil
}

// CloseAll releases every active driver and persists every session. Used at shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Release(); err != nil {
			errs = append(errs, err)
		}
		if err := m.Persist(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
