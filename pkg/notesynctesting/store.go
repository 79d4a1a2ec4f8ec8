// Package notesynctesting provides helpers for testing code built on the
// sync engine: an in-memory store, a recording log handler and [Replica], a
// client that keeps a local copy of a user's data and syncs it over any
// [Transport].
package notesynctesting

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/notesync/notesync/pkg/store/postgres"
	"github.com/stretchr/testify/require"
)

// NewStore returns a migrated store backed by a private in-memory SQLite
// database. The store is closed when the test ends.
func NewStore(t testing.TB) *postgres.PostgresStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	s, err := postgres.NewSQLiteStore(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}
