// Package surrealdb stores client view records in SurrealDB.
//
// [ClientViewStore] implements [store.ClientViewStore] only. Client views are
// the bulk of the sync engine's write volume and are never joined with entity
// tables, which makes them a good fit for a separate document store. Records
// live in the client_views table under the array record id
// client_views:[<client group>, <cookie>], with the entries stored as a
// native object so they can be inspected with plain SurrealQL.
//
// The connection uses the surrealcbor codec over gorilla/websocket.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/notesync/notesync/pkg/cvr"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/store"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

// ClientViewStore persists client views in SurrealDB.
type ClientViewStore struct {
	db *surrealdb.DB
}

var _ store.ClientViewStore = (*ClientViewStore)(nil)

type clientViewRecord struct {
	ClientGroupID string           `json:"client_group_id"`
	Cookie        int64            `json:"cookie"`
	Entries       map[string]int64 `json:"entries"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewClientViewStore connects, signs in when credentials are given and
// selects the namespace and database.
func NewClientViewStore(ctx context.Context, wsURL, namespace, database, username, password string) (*ClientViewStore, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &ClientViewStore{db: db}, nil
}

// Migrate defines the client_views table.
func (s *ClientViewStore) Migrate(ctx context.Context) error {
	const q = `DEFINE TABLE IF NOT EXISTS client_views SCHEMALESS;
DEFINE INDEX IF NOT EXISTS client_views_group ON client_views FIELDS client_group_id;`
	if _, err := surrealdb.Query[any](ctx, s.db, q, nil); err != nil {
		return fmt.Errorf("failed to define client_views: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *ClientViewStore) Close() error {
	return s.db.Close(context.Background())
}

func (s *ClientViewStore) GetClientView(ctx context.Context, groupID models.ClientGroupID, cookie int64) (*models.ClientView, error) {
	rec, err := surrealdb.Select[clientViewRecord](ctx, s.db, groupID.ClientViewRecordID(cookie))
	if err != nil {
		return nil, fmt.Errorf("failed to get client view: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	entries, err := cvr.Encode(rec.Entries)
	if err != nil {
		return nil, err
	}
	return &models.ClientView{
		ClientGroupID: groupID,
		Cookie:        rec.Cookie,
		Entries:       entries,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

func (s *ClientViewStore) PutClientView(ctx context.Context, view *models.ClientView) error {
	entries, err := cvr.Decode(view.Entries)
	if err != nil {
		return err
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now()
	}

	rec := clientViewRecord{
		ClientGroupID: string(view.ClientGroupID),
		Cookie:        view.Cookie,
		Entries:       entries,
		CreatedAt:     view.CreatedAt,
	}
	// UPSERT: a cookie whose SQL transaction rolled back is minted again.
	_, err = surrealdb.Query[any](ctx, s.db, "UPSERT $id CONTENT $content", map[string]any{
		"id":      view.ClientGroupID.ClientViewRecordID(view.Cookie),
		"content": rec,
	})
	if err != nil {
		return fmt.Errorf("failed to store client view: %w", err)
	}
	return nil
}
