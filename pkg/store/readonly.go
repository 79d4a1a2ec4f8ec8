package store

import (
	"context"

	"github.com/notesync/notesync/pkg/models"
)

// ReadOnlyStore wraps a Store and rejects writes to synced entities and the
// mutation log while isReadOnly returns true.
//
// Sync bookkeeping (client groups, cookies and client views) stays writable
// so that pulls keep working during maintenance. The read-only state is
// checked on every call, so it can be toggled at runtime.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store Store, isReadOnly func() bool) *ReadOnlyStore {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) Transaction(ctx context.Context, fn func(tx Tx) error, opts ...TxOption) error {
	return r.Store.Transaction(ctx, func(tx Tx) error {
		return fn(&readOnlyTx{Tx: tx, isReadOnly: r.isReadOnly})
	}, opts...)
}

type readOnlyTx struct {
	Tx
	isReadOnly func() bool
}

// checkReadOnly returns an error if the store is in read-only mode
func (r *readOnlyTx) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

func (r *readOnlyTx) CreateNote(ctx context.Context, note *models.Note) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.CreateNote(ctx, note)
}

func (r *readOnlyTx) UpdateNote(ctx context.Context, note *models.Note) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.UpdateNote(ctx, note)
}

func (r *readOnlyTx) DeleteNote(ctx context.Context, id models.NoteID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.DeleteNote(ctx, id)
}

func (r *readOnlyTx) ReplaceBlocks(ctx context.Context, note *models.Note, blocks []*models.Block) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.ReplaceBlocks(ctx, note, blocks)
}

func (r *readOnlyTx) AppendMutation(ctx context.Context, entry *models.MutationLogEntry) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.AppendMutation(ctx, entry)
}

func (r *readOnlyTx) SetLastMutationID(ctx context.Context, id models.ClientID, mutationID int64) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Tx.SetLastMutationID(ctx, id, mutationID)
}
