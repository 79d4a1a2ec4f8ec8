// Package engine implements push and pull, the two operations of the sync
// protocol.
//
// Push applies a batch of client mutations inside one store transaction and,
// after commit, notifies the user's other clients. Pull compares what a
// client group was last sent (its client view record, identified by the
// cookie the client presents) with the current state and returns the patch
// between them together with a new cookie.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/notesync/notesync/pkg/logger"
	"github.com/notesync/notesync/pkg/markdown"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/store"
)

// Parser turns note content into blocks. It must be pure.
type Parser interface {
	Parse(content, path string, ownerID models.UserID, noteID models.NoteID) ([]*models.Block, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(content, path string, ownerID models.UserID, noteID models.NoteID) ([]*models.Block, error)

func (f ParserFunc) Parse(content, path string, ownerID models.UserID, noteID models.NoteID) ([]*models.Block, error) {
	return f(content, path, ownerID, noteID)
}

// Notifier tells a user's subscribers that new data is available.
type Notifier interface {
	Notify(ctx context.Context, userID models.UserID) error
}

const defaultNotifyTimeout = 5 * time.Second

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Parser defaults to the markdown parser.
	Parser Parser
	// Notifier is called after every committed push. Nil disables notification.
	Notifier Notifier
	Logger   logger.Logger
	// NotifyTimeout bounds each notification.
	NotifyTimeout time.Duration
}

// Engine runs pushes and pulls against a Store. It is safe for concurrent use.
type Engine struct {
	store         store.Store
	parser        Parser
	notifier      Notifier
	logger        logger.Logger
	notifyTimeout time.Duration

	inflight sync.WaitGroup
}

func New(s store.Store, opts Options) *Engine {
	e := &Engine{
		store:         s,
		parser:        opts.Parser,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		notifyTimeout: opts.NotifyTimeout,
	}
	if e.parser == nil {
		e.parser = markdown.New()
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = defaultNotifyTimeout
	}
	return e
}

// Wait blocks until every notification started so far has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// notify runs the notifier in the background. Failures are logged and
// never reach the pusher.
func (e *Engine) notify(userID models.UserID) {
	if e.notifier == nil {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, userID); err != nil {
			e.logger.Warn("Failed to notify subscribers", "user_id", userID, "error", err)
		}
	}()
}
