package notesync

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/poke"
)

const (
	pokeWriteWait  = 10 * time.Second
	pokePongWait   = 60 * time.Second
	pokePingPeriod = (pokePongWait * 9) / 10
)

var pokeMessage = []byte("poke")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handlePoke serves GET /api/poke. The connection receives the text message
// "poke" whenever the user's data changes. Anything the client sends is
// discarded.
func (a *App) handlePoke(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("Failed to upgrade poke connection", "user_id", userID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := a.hub.SubscribeContext(ctx, userID)
	defer sub.Close()
	a.logger.Debug("Poke connection opened", "user_id", userID, "remote_addr", r.RemoteAddr)

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pokePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pokePongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	a.writePokes(ctx, conn, sub, userID)
}

// pokeWriter is the write side of a poke connection.
type pokeWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// writePokes forwards pokes from sub to conn until ctx ends, the
// subscription closes or a write fails. A close frame is sent only when the
// hub shut the subscription down; a peer that disconnected gets nothing.
func (a *App) writePokes(ctx context.Context, conn pokeWriter, sub *poke.Subscription, userID models.UserID) {
	ticker := time.NewTicker(pokePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				if ctx.Err() != nil {
					a.logger.Debug("Poke connection closed", "user_id", userID)
					return
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(pokeWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(pokeWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, pokeMessage); err != nil {
				a.logger.Debug("Poke write failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pokeWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			a.logger.Debug("Poke connection closed", "user_id", userID)
			return
		}
	}
}
