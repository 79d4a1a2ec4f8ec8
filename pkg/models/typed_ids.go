package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Ids are opaque strings. Notes, client groups and clients are named by the
// client that creates them; blocks and users are named by the server or the
// identity provider.

// UserID identifies the authenticated owner of notes and client groups.
type UserID string

func (u UserID) String() string { return string(u) }
func (u UserID) IsZero() bool   { return u == "" }

func (u UserID) Value() (driver.Value, error) { return string(u), nil }
func (u *UserID) Scan(value any) error        { return scanString(value, (*string)(u)) }

// NoteID identifies a note.
type NoteID string

func (n NoteID) String() string { return string(n) }
func (n NoteID) IsZero() bool   { return n == "" }

func (n NoteID) Value() (driver.Value, error) { return string(n), nil }
func (n *NoteID) Scan(value any) error        { return scanString(value, (*string)(n)) }

// BlockID identifies a block.
type BlockID string

// NewBlockID returns a fresh random block id.
func NewBlockID() BlockID {
	return BlockID(uuid.NewString())
}

func (b BlockID) String() string { return string(b) }
func (b BlockID) IsZero() bool   { return b == "" }

func (b BlockID) Value() (driver.Value, error) { return string(b), nil }
func (b *BlockID) Scan(value any) error        { return scanString(value, (*string)(b)) }

// ClientGroupID identifies a client group.
type ClientGroupID string

func (g ClientGroupID) String() string { return string(g) }
func (g ClientGroupID) IsZero() bool   { return g == "" }

func (g ClientGroupID) Value() (driver.Value, error) { return string(g), nil }
func (g *ClientGroupID) Scan(value any) error        { return scanString(value, (*string)(g)) }

// ClientViewRecordID returns the SurrealDB record id of the client view
// minted for this group under cookie.
func (g ClientGroupID) ClientViewRecordID(cookie int64) surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "client_views",
		ID:    []any{string(g), cookie},
	}
}

// ClientID identifies a single client within a client group.
type ClientID string

func (c ClientID) String() string { return string(c) }
func (c ClientID) IsZero() bool   { return c == "" }

func (c ClientID) Value() (driver.Value, error) { return string(c), nil }
func (c *ClientID) Scan(value any) error        { return scanString(value, (*string)(c)) }

func scanString(value any, dst *string) error {
	switch v := value.(type) {
	case nil:
		*dst = ""
	case string:
		*dst = v
	case []byte:
		*dst = string(v)
	default:
		return fmt.Errorf("cannot scan %T into id", value)
	}
	return nil
}
