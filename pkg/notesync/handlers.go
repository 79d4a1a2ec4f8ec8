package notesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/notesync/notesync/pkg/engine"
)

const maxRequestBytes = 16 << 20

var encodeFailure = []byte(`{"error":"failed to encode response"}`)

// respondJSON writes payload with status. If payload cannot be encoded it
// answers 500 instead and returns the error.
func respondJSON(w http.ResponseWriter, status int, payload any) error {
	response, err := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailure)
		return fmt.Errorf("failed to encode response: %w", err)
	}
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
	return nil
}

func (a *App) respond(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := respondJSON(w, status, payload); err != nil {
		a.logger.Error("Request failed", "path", r.URL.Path, "status", http.StatusInternalServerError, "error", err)
	}
}

// respondError writes {"error": message, "kind": kind}. kind is omitted when
// empty.
func respondError(w http.ResponseWriter, status int, kind engine.ErrorKind, message string) {
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = string(kind)
	}
	_ = respondJSON(w, status, body)
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindAuthorization:
		return http.StatusForbidden
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	respondError(w, status, engine.KindOf(err), err.Error())
}

// decodeBody reads a JSON request body of at most maxRequestBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, engine.KindValidation, "request body too large")
			return err
		}
		respondError(w, http.StatusBadRequest, engine.KindValidation, "Invalid request payload")
		return err
	}
	return nil
}

// handlePull serves POST /api/pull.
//
// Request:
//
//	{"clientGroupID": "cg1", "cookie": 3}
//
// Response:
//
//	{"cookie": 4, "lastMutationIDChanges": {"c1": 7}, "patch": [{"op": "put", "key": "note/n1", "value": {...}}]}
func (a *App) handlePull(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req engine.PullRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	resp, err := a.engine.Pull(r.Context(), userID, &req)
	if err != nil {
		a.respondEngineError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, resp)
}

// handlePush serves POST /api/push. Rejected mutations are reported per
// mutation in a 200 response; only whole-batch failures produce an error
// status.
func (a *App) handlePush(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req engine.PushRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	resp, err := a.engine.Push(r.Context(), userID, &req)
	if err != nil {
		a.respondEngineError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, resp)
}

// handleHealth serves GET /health and GET /api/health.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "healthy",
		"read_only": a.IsReadOnly(),
		"time":      time.Now().Unix(),
	}
	a.respond(w, r, http.StatusOK, response)
}
