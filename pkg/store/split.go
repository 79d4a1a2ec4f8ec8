package store

import (
	"context"
	"errors"

	"github.com/notesync/notesync/pkg/models"
)

// ClientViewBackend is a ClientViewStore with its own lifecycle.
type ClientViewBackend interface {
	ClientViewStore
	Migrate(ctx context.Context) error
	Close() error
}

// SplitStore routes client view reads and writes to a separate backend and
// everything else to the wrapped Store.
//
// Client view writes are not part of the wrapped store's transaction. The
// backend must therefore accept a second write for the same cookie: the
// first one may belong to a transaction that rolled back and whose cookie is
// minted again.
type SplitStore struct {
	Store
	views ClientViewBackend
}

// WithClientViews returns a Store whose client views live in views.
func WithClientViews(s Store, views ClientViewBackend) *SplitStore {
	return &SplitStore{Store: s, views: views}
}

// Unwrap returns the underlying store
func (s *SplitStore) Unwrap() Store {
	return s.Store
}

func (s *SplitStore) Transaction(ctx context.Context, fn func(tx Tx) error, opts ...TxOption) error {
	return s.Store.Transaction(ctx, func(tx Tx) error {
		return fn(&splitTx{Tx: tx, views: s.views})
	}, opts...)
}

func (s *SplitStore) Migrate(ctx context.Context) error {
	if err := s.Store.Migrate(ctx); err != nil {
		return err
	}
	return s.views.Migrate(ctx)
}

func (s *SplitStore) Close() error {
	return errors.Join(s.Store.Close(), s.views.Close())
}

type splitTx struct {
	Tx
	views ClientViewStore
}

func (t *splitTx) GetClientView(ctx context.Context, groupID models.ClientGroupID, cookie int64) (*models.ClientView, error) {
	return t.views.GetClientView(ctx, groupID, cookie)
}

func (t *splitTx) PutClientView(ctx context.Context, view *models.ClientView) error {
	return t.views.PutClientView(ctx, view)
}
