package notesync_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/notesync/notesync/pkg/client"
	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/notesync"
	"github.com/notesync/notesync/pkg/notesynctesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app  *notesync.App
	srv  *httptest.Server
	logs *notesynctesting.LogRecorder
}

func newTestServer(t *testing.T, config *notesync.Config) *testServer {
	t.Helper()
	if config == nil {
		config = &notesync.Config{}
	}
	logs := notesynctesting.NewLogRecorder(nil)
	app := notesync.NewWithStore(config, notesynctesting.NewStore(t), logs.Logger())
	t.Cleanup(func() { _ = app.Close() })

	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return &testServer{app: app, srv: srv, logs: logs}
}

func (ts *testServer) client(userID models.UserID) *client.Client {
	c := client.NewClient(ts.srv.URL)
	c.SetUserID(userID)
	return c
}

func TestSyncOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, nil)

	laptop := notesynctesting.NewReplica(ts.client("alice"))
	phone := notesynctesting.NewReplica(ts.client("alice"))

	_, err := laptop.CreateNote("n1", "Groceries", "# Groceries\n\n- [ ] milk\n- [x] bread")
	require.NoError(t, err)
	require.NoError(t, laptop.Sync(ctx))
	require.NoError(t, phone.Sync(ctx))

	note, ok := phone.Note("n1")
	require.True(t, ok)
	assert.Equal(t, "Groceries", note.Title)
	assert.Len(t, phone.Blocks("n1"), 3)

	_, err = phone.UpdateContent("n1", "# Groceries\n\n- [x] milk")
	require.NoError(t, err)
	_, err = phone.CreateNote("n2", "Ideas", "text")
	require.NoError(t, err)
	require.NoError(t, phone.Sync(ctx))

	_, err = laptop.DeleteNote("n2")
	require.NoError(t, err)
	require.NoError(t, laptop.Sync(ctx))
	require.NoError(t, phone.Sync(ctx))

	assert.Equal(t, laptop.Entities(), phone.Entities())
	assert.Zero(t, laptop.Pending())
	assert.Zero(t, phone.Pending())

	fresh := notesynctesting.NewReplica(ts.client("alice"))
	require.NoError(t, fresh.Sync(ctx))
	assert.Equal(t, fresh.Entities(), laptop.Entities())

	// Nothing changed, nothing sent.
	resp, err := laptop.Pull(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Patch)
}

func TestPushReportsRejectedMutations(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, nil)
	r := notesynctesting.NewReplica(ts.client("alice"))

	_, err := r.UpdateContent("missing", "x")
	require.NoError(t, err)
	_, err = r.CreateNote("n1", "", "ok")
	require.NoError(t, err)

	resp, err := r.Push(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, engine.StatusFailed, resp.Results[0].Status)
	require.NotNil(t, resp.Results[0].Error)
	assert.Equal(t, engine.KindNotFound, resp.Results[0].Error.Kind)
	assert.Equal(t, engine.StatusApplied, resp.Results[1].Status)

	require.NoError(t, r.Sync(ctx))
	assert.Equal(t, int64(2), r.LastMutationID())
	assert.Zero(t, r.Pending())
}

func TestErrorResponses(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, nil)
	alice := ts.client("alice")
	bob := ts.client("bob")

	_, err := alice.Pull(ctx, &engine.PullRequest{ClientGroupID: "g1"})
	require.NoError(t, err)

	var apiErr *client.APIError

	_, err = alice.Pull(ctx, &engine.PullRequest{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = bob.Pull(ctx, &engine.PullRequest{ClientGroupID: "g1"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.ErrorIs(t, err, engine.ErrAuthorization)

	anonymous := client.NewClient(ts.srv.URL)
	_, err = anonymous.Pull(ctx, &engine.PullRequest{ClientGroupID: "g1"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	resp, err := http.Post(ts.srv.URL+"/api/push", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/push", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "alice")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReadOnlyMode(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, &notesync.Config{ReadOnly: true})
	r := notesynctesting.NewReplica(ts.client("alice"))

	_, err := r.CreateNote("n1", "", "x")
	require.NoError(t, err)

	_, err = r.Push(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.ErrorIs(t, err, engine.ErrStorage)

	_, err = r.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())

	health, err := ts.client("alice").Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, health["read_only"])

	ts.app.SetReadOnly(false)
	require.NoError(t, r.Sync(ctx))
	assert.Zero(t, r.Pending())
	_, ok := r.Note("n1")
	assert.True(t, ok)
}

func TestTokenAuthentication(t *testing.T) {
	ctx := context.Background()
	const secret = "test-secret"
	ts := newTestServer(t, &notesync.Config{JWTSecret: secret})

	token, err := notesync.SignToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	c := client.NewClient(ts.srv.URL)
	c.SetAuthToken(token)

	r := notesynctesting.NewReplica(c)
	_, err = r.CreateNote("n1", "", "x")
	require.NoError(t, err)
	require.NoError(t, r.Sync(ctx))

	var apiErr *client.APIError

	// The header is ignored once tokens are required.
	_, err = ts.client("alice").Pull(ctx, &engine.PullRequest{ClientGroupID: r.GroupID})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	forged, err := notesync.SignToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	c.SetAuthToken(forged)
	_, err = c.Pull(ctx, &engine.PullRequest{ClientGroupID: r.GroupID})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	expired, err := notesync.SignToken(secret, "alice", -time.Minute)
	require.NoError(t, err)
	c.SetAuthToken(expired)
	_, err = c.Pull(ctx, &engine.PullRequest{ClientGroupID: r.GroupID})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	bobToken, err := notesync.SignToken(secret, "bob", time.Hour)
	require.NoError(t, err)
	c.SetAuthToken(bobToken)
	_, err = c.Pull(ctx, &engine.PullRequest{ClientGroupID: r.GroupID})
	assert.ErrorIs(t, err, engine.ErrAuthorization)
}

func TestPushRateLimit(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, &notesync.Config{PushRate: 0.01, PushBurst: 1})
	alice := ts.client("alice")

	req := &engine.PushRequest{ClientGroupID: "g1"}
	_, err := alice.Push(ctx, req)
	require.NoError(t, err)

	_, err = alice.Push(ctx, req)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.ErrorIs(t, err, engine.ErrStorage)

	// Limits are per user, and pulls are not limited.
	_, err = ts.client("bob").Push(ctx, &engine.PushRequest{ClientGroupID: "g2"})
	require.NoError(t, err)
	_, err = alice.Pull(ctx, &engine.PullRequest{ClientGroupID: "g1"})
	require.NoError(t, err)
	assert.True(t, ts.logs.Contains(slog.LevelWarn, "Push rate limit exceeded"))
}

func TestPokeOverWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ts := newTestServer(t, nil)

	alicePokes, err := ts.client("alice").SubscribePokes(ctx)
	require.NoError(t, err)
	bobPokes, err := ts.client("bob").SubscribePokes(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ts.app.Hub().Len("alice") == 1 && ts.app.Hub().Len("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	r := notesynctesting.NewReplica(ts.client("alice"))
	_, err = r.CreateNote("n1", "", "x")
	require.NoError(t, err)
	_, err = r.Push(ctx)
	require.NoError(t, err)

	select {
	case _, ok := <-alicePokes:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no poke received")
	}

	select {
	case <-bobPokes:
		t.Fatal("bob was poked for alice's change")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	require.Eventually(t, func() bool { return ts.app.Hub().Len("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(ts.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	assert.True(t, ts.logs.Contains(slog.LevelInfo, "request_id=req-42"))
}

func TestMainMigrateAndRun(t *testing.T) {
	t.Setenv("NOTESYNC_PUSH_RATE", "")
	t.Chdir(t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "notes.db")

	require.NoError(t, notesync.Main(context.Background(), []string{
		"-db", "sqlite", "-sqlite-path", dbPath, "-log-level", "error", "migrate",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- notesync.Main(ctx, []string{
			"-db", "sqlite", "-sqlite-path", dbPath, "-port", "0", "-log-level", "error", "run",
		})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
