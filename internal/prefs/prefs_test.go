package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStore_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SetToken(ctx, "abc"))
	require.NoError(t, s.SetToken(ctx, "def"))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", tok)

	require.NoError(t, s.ClearToken(ctx))
	require.NoError(t, s.ClearToken(ctx))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestStore_LocaleIsIndependentOfToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetToken(ctx, "abc"))
	require.NoError(t, s.SetLocale(ctx, "pt-BR"))
	require.NoError(t, s.ClearToken(ctx))

	loc, err := s.Locale(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pt-BR", loc)
}
