package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/mutation"
	"github.com/notesync/notesync/pkg/store"
	"github.com/notesync/notesync/pkg/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStore(t *testing.T) *postgres.PostgresStore {
	t.Helper()
	dsn := os.Getenv("NOTESYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOTESYNC_TEST_POSTGRES_DSN not set")
	}
	s, err := postgres.NewPostgresStore(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestPostgresConcurrentPullsOfOneGroup(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	e := engine.New(s, engine.Options{})
	defer e.Wait()

	user := models.UserID("u-" + uuid.NewString())
	group := models.ClientGroupID("g-" + uuid.NewString())
	first, err := e.Pull(ctx, user, &engine.PullRequest{ClientGroupID: group})
	require.NoError(t, err)

	_, err = e.Push(ctx, user, &engine.PushRequest{
		ClientGroupID: group,
		Mutations: []mutation.Mutation{
			mustCreate(t, models.ClientID("c-"+uuid.NewString()), models.NoteID("n-"+uuid.NewString())),
		},
	})
	require.NoError(t, err)

	const tabs = 8
	cookies := make([]int64, tabs)
	var wg sync.WaitGroup
	for i := range tabs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.Pull(ctx, user, &engine.PullRequest{ClientGroupID: group, Cookie: &first.Cookie})
			if assert.NoError(t, err) {
				cookies[i] = resp.Cookie
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, c := range cookies {
		assert.Greater(t, c, first.Cookie)
		assert.False(t, seen[c], "cookie %d minted twice", c)
		seen[c] = true
	}
}

func TestPostgresPullDoesNotWaitForPush(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	e := engine.New(s, engine.Options{})
	defer e.Wait()

	user := models.UserID("u-" + uuid.NewString())
	group := models.ClientGroupID("g-" + uuid.NewString())
	client := models.ClientID("c-" + uuid.NewString())
	_, err := e.Push(ctx, user, &engine.PushRequest{
		ClientGroupID: group,
		Mutations:     []mutation.Mutation{mustCreate(t, client, models.NoteID("n-"+uuid.NewString()))},
	})
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Transaction(ctx, func(tx store.Tx) error {
			if _, err := tx.EnsureClientGroup(ctx, group, user); err != nil {
				return err
			}
			if _, err := tx.EnsureClient(ctx, client, group); err != nil {
				return err
			}
			close(locked)
			<-release
			return tx.SetLastMutationID(ctx, client, 2)
		})
	}()
	<-locked

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	resp, err := e.Pull(pullCtx, user, &engine.PullRequest{ClientGroupID: group})
	cancel()
	close(release)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.LastMutationIDChanges[client])
	require.NoError(t, <-done)
}

func mustCreate(t *testing.T, clientID models.ClientID, noteID models.NoteID) mutation.Mutation {
	t.Helper()
	m, err := mutation.New(clientID, 1, &mutation.CreateNoteArgs{ID: noteID, Title: "t", Content: "c"})
	require.NoError(t, err)
	return m
}
