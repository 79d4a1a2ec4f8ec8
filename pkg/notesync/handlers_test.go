package notesync

import (
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/notesync/notesync/pkg/notesynctesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondEncodeFailure(t *testing.T) {
	logs := notesynctesting.NewLogRecorder(nil)
	app := NewWithStore(&Config{}, notesynctesting.NewStore(t), logs.Logger())
	t.Cleanup(func() { _ = app.Close() })

	r := httptest.NewRequest(http.MethodPost, "/api/pull", nil)

	w := httptest.NewRecorder()
	app.respond(w, r, http.StatusOK, map[string]any{"value": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to encode response"}`, w.Body.String())
	assert.True(t, logs.Contains(slog.LevelError, "Request failed"))

	w = httptest.NewRecorder()
	app.respond(w, r, http.StatusOK, map[string]any{"value": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":1}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
