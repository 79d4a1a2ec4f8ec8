package notesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Router returns the HTTP handler for the sync API.
//
//	GET  /health, /api/health   Service health and read-only state
//	POST /api/pull              Patch since a cookie
//	POST /api/push              Apply a batch of mutations
//	GET  /api/poke              Websocket of "poke" messages
//
// Every /api route except health requires an authenticated user.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.accessLog)

	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(a.authenticate)
	authed.HandleFunc("/pull", a.handlePull).Methods(http.MethodPost)
	authed.Handle("/push", a.limitPushes(http.HandlerFunc(a.handlePush))).Methods(http.MethodPost)
	authed.HandleFunc("/poke", a.handlePoke).Methods(http.MethodGet)

	return router
}

// accessLog tags every request with an X-Request-ID and logs it once it
// completes.
func (a *App) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		m := httpsnoop.CaptureMetrics(next, w, r)
		a.logger.Info("Handled request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration)
	})
}

// Run serves the API until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests up to five seconds. Poke connections are closed
// as part of the shutdown.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting notesync server", "addr", addr, "read_only", a.IsReadOnly())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Close()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
