// Package testutil provides database and fixture helpers for tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/infrastructure/sqlite"
	"github.com/zjrosen/weave/internal/stories/domain"
)

// NewTestStore opens a fresh in-memory store with the full schema.
// Closed automatically when the test finishes.
func NewTestStore(t *testing.T) domain.Store {
	t.Helper()

	db, err := sqlite.NewMemoryDB()
	require.NoError(t, err)

	store := sqlite.NewStore(db)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}
