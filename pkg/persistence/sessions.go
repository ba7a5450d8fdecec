package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formpilot/pkg/prefs"
	"formpilot/pkg/session"
)

const timeLayout = time.RFC3339Nano

// LoadSession returns the stored snapshot or session.ErrNotFound.
func (s *SQLiteStore) LoadSession(ctx context.Context, userID int64) (*session.Snapshot, error) {
	var (
		snap                   session.Snapshot
		prefsJSON, noticesJSON string
		updatedAt              string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, chat_id, link, prefs_json, notices_json, updated_at
		FROM sessions WHERE user_id = ?`, userID).
		Scan(&snap.UserID, &snap.ChatID, &snap.Link, &prefsJSON, &noticesJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %d: %w", userID, err)
	}

	snap.Prefs = prefs.NewCache()
	if err := json.Unmarshal([]byte(prefsJSON), snap.Prefs); err != nil {
		return nil, fmt.Errorf("failed to decode preferences for %d: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(noticesJSON), &snap.Notices); err != nil {
		return nil, fmt.Errorf("failed to decode notices for %d: %w", userID, err)
	}
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		snap.UpdatedAt = t
	}
	return &snap, nil
}

// SaveSession upserts the snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, snap *session.Snapshot) error {
	cache := snap.Prefs
	if cache == nil {
		cache = prefs.NewCache()
	}
	prefsJSON, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to encode preferences for %d: %w", snap.UserID, err)
	}
	notices := snap.Notices
	if notices == nil {
		notices = []string{}
	}
	noticesJSON, err := json.Marshal(notices)
	if err != nil {
		return fmt.Errorf("failed to encode notices for %d: %w", snap.UserID, err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, chat_id, link, prefs_json, notices_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			link = excluded.link,
			prefs_json = excluded.prefs_json,
			notices_json = excluded.notices_json,
			updated_at = excluded.updated_at`,
		snap.UserID, snap.ChatID, snap.Link, string(prefsJSON), string(noticesJSON),
		updated.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save session %d: %w", snap.UserID, err)
	}
	return nil
}

// DeleteSession removes the stored snapshot. Deleting a missing session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", userID, err)
	}
	return nil
}
