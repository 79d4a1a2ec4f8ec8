package store

import (
	"context"
	"errors"

	"github.com/notesync/notesync/pkg/models"
)

// ErrReadOnly is returned by write operations while the store is in
// read-only mode.
var ErrReadOnly = errors.New("operation denied: store is in read-only mode")

// ErrConflict is returned by Transaction when the transaction lost a race
// with a concurrent one and was rolled back. Running it again may succeed.
var ErrConflict = errors.New("transaction conflict")

// Store is the authoritative storage behind the sync engine.
//
// All reads and writes happen inside Transaction. Everything fn does through
// its Tx commits or rolls back together; returning an error from fn rolls the
// transaction back and Transaction returns that error unchanged.
type Store interface {
	// Transaction runs fn in a single storage transaction.
	Transaction(ctx context.Context, fn func(tx Tx) error, opts ...TxOption) error

	// Migrate creates or updates the schema. Safe to run repeatedly.
	Migrate(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// Tx is the set of operations available inside a transaction. It is split by
// component so that code needing only part of it can say so.
type Tx interface {
	VersionStore
	MutationLog
	ClientStateTracker
	ClientViewStore
}

// VersionStore holds the synced entities and their versions.
//
// Getters return nil, nil when the row does not exist.
type VersionStore interface {
	GetNote(ctx context.Context, id models.NoteID) (*models.Note, error)

	// CreateNote inserts note at version 1.
	CreateNote(ctx context.Context, note *models.Note) error

	// UpdateNote writes title, content and path, increments the version by
	// exactly one and reloads note from the database so the caller sees the
	// committed version.
	UpdateNote(ctx context.Context, note *models.Note) error

	// DeleteNote removes the note and all of its blocks.
	DeleteNote(ctx context.Context, id models.NoteID) error

	// ReplaceBlocks deletes every block of note and inserts blocks in their
	// place. Inserted blocks get the note's owner and version 1.
	ReplaceBlocks(ctx context.Context, note *models.Note, blocks []*models.Block) error

	// ListNotes returns every note owned by ownerID.
	ListNotes(ctx context.Context, ownerID models.UserID) ([]*models.Note, error)

	// ListBlocks returns every block owned by ownerID.
	ListBlocks(ctx context.Context, ownerID models.UserID) ([]*models.Block, error)
}

// MutationLog is the append-only record of received mutations.
type MutationLog interface {
	AppendMutation(ctx context.Context, entry *models.MutationLogEntry) error
	ListMutations(ctx context.Context, clientID models.ClientID) ([]*models.MutationLogEntry, error)
}

// ClientStateTracker records client groups, clients and the last mutation
// applied for each client.
type ClientStateTracker interface {
	// EnsureClientGroup returns the group, creating it for userID if it does
	// not exist. The returned group may belong to a different user; callers
	// must check.
	EnsureClientGroup(ctx context.Context, id models.ClientGroupID, userID models.UserID) (*models.ClientGroup, error)

	// EnsureClient returns the client, creating it in groupID with
	// LastMutationID 0 if it does not exist. The returned client may belong to
	// a different group; callers must check.
	EnsureClient(ctx context.Context, id models.ClientID, groupID models.ClientGroupID) (*models.Client, error)

	// SetLastMutationID records mutationID as applied. It never lowers the
	// stored value.
	SetLastMutationID(ctx context.Context, id models.ClientID, mutationID int64) error

	ListClients(ctx context.Context, groupID models.ClientGroupID) ([]*models.Client, error)

	// NextCookie increments and returns the group's cookie counter.
	NextCookie(ctx context.Context, groupID models.ClientGroupID) (int64, error)
}

// ClientViewStore persists client view records keyed by client group and
// cookie. Records are immutable.
type ClientViewStore interface {
	// GetClientView returns nil, nil when no record exists for the cookie.
	GetClientView(ctx context.Context, groupID models.ClientGroupID, cookie int64) (*models.ClientView, error)
	PutClientView(ctx context.Context, view *models.ClientView) error
}

// TxOptions tunes a transaction.
type TxOptions struct {
	// Snapshot asks for a consistent read snapshot across all statements,
	// where the backend supports it.
	Snapshot bool
}

// TxOption configures TxOptions.
type TxOption func(*TxOptions)

// WithSnapshot requests snapshot isolation.
func WithSnapshot() TxOption {
	return func(o *TxOptions) { o.Snapshot = true }
}

// ApplyTxOptions folds opts into a TxOptions value.
func ApplyTxOptions(opts ...TxOption) TxOptions {
	var o TxOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
