package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when no session is stored for a user.
var ErrNotFound = errors.New("session not found")

// Store persists session snapshots.
type Store interface {
	LoadSession(ctx context.Context, userID int64) (*Snapshot, error)
	SaveSession(ctx context.Context, snap *Snapshot) error
	DeleteSession(ctx context.Context, userID int64) error
}

// MemoryStore keeps snapshots in process memory, encoded the same way durable stores encode them.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int64][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64][]byte)}
}

func (m *MemoryStore) LoadSession(_ context.Context, userID int64) (*Snapshot, error) {
	m.mu.RLock()
	raw, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session %d: %w", userID, err)
	}
	return &snap, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session %d: %w", snap.UserID, err)
	}
	m.mu.Lock()
	m.data[snap.UserID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.data, userID)
	m.mu.Unlock()
	return nil
}
