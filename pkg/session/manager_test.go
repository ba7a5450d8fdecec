package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetCreatesAndCaches(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	s1, err := m.Get(ctx, 7, 70)
	require.NoError(t, err)
	s2, err := m.Get(ctx, 7, 0)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, int64(70), s2.ChatID())
}

func TestManagerLoadsPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewManager(store)
	s, err := first.Get(ctx, 7, 70)
	require.NoError(t, err)
	require.NoError(t, s.SetLink("https://forms.example/x"))
	require.NoError(t, first.Persist(ctx, s))

	second := NewManager(store)
	_, err = second.Lookup(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)

	loaded, err := second.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "https://forms.example/x", loaded.Link())

	again, err := second.Get(ctx, 7, 0)
	require.NoError(t, err)
	assert.Same(t, loaded, again)
}

func TestManagerReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store)

	s, err := m.Get(ctx, 7, 70)
	require.NoError(t, err)
	require.NoError(t, s.SetLink("L"))
	require.NoError(t, m.Persist(ctx, s))

	require.NoError(t, m.Reset(ctx, s))
	_, err = store.LoadSession(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "", s.Link())
}
