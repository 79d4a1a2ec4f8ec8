package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BlockType represents the type of content block
type BlockType string

const (
	BlockTypeText    BlockType = "text"
	BlockTypeHeading BlockType = "heading"
	BlockTypeList    BlockType = "list"
	BlockTypeCode    BlockType = "code"
	BlockTypeQuote   BlockType = "quote"
	BlockTypeImage   BlockType = "image"
	BlockTypeTable   BlockType = "table"
	BlockTypeTodo    BlockType = "todo"
)

// JSONMap is a key-value map stored as JSON (jsonb on PostgreSQL).
// Blocks use it for type specific attributes such as the heading level
// or the language of a code fence.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// RawJSON holds an opaque JSON document exactly as the client sent it.
// Unlike JSONMap it accepts any JSON value, which is what the mutation log
// needs: arguments are recorded before they are validated.
type RawJSON []byte

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = RawJSON(v)
	default:
		return fmt.Errorf("unsupported RawJSON source type %T", value)
	}
	return nil
}

// Note is a user-owned document. Version starts at 1 and increases by one
// on every successful update.
type Note struct {
	ID        NoteID    `gorm:"primaryKey;size:128" json:"id"`
	OwnerID   UserID    `gorm:"size:128;not null;index" json:"ownerID"`
	Title     string    `gorm:"not null;default:''" json:"title"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`
	Path      string    `json:"path,omitempty"`
	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the note's entity key in client views.
func (n *Note) Key() string { return NoteKey(n.ID) }

// Block is a structural fragment of a note's content. Blocks are produced by
// the content parser and are never edited in place: when the parent note's
// content changes they are deleted and regenerated with fresh ids.
type Block struct {
	ID        BlockID   `gorm:"primaryKey;size:128" json:"id"`
	OwnerID   UserID    `gorm:"size:128;not null;index" json:"ownerID"`
	NoteID    *NoteID   `gorm:"size:128;index" json:"noteID,omitempty"`
	Type      BlockType `gorm:"not null" json:"type"`
	Text      string    `gorm:"type:text" json:"text"`
	Data      JSONMap   `gorm:"type:jsonb" json:"data,omitempty"`
	Order     int       `gorm:"column:block_order;not null" json:"order"`
	Path      string    `json:"path,omitempty"`
	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the block's entity key in client views.
func (b *Block) Key() string { return BlockKey(b.ID) }

// ClientGroup is the set of clients sharing one local store, typically the
// tabs of one browser profile. CVRVersion is the last cookie minted for the group.
type ClientGroup struct {
	ID         ClientGroupID `gorm:"primaryKey;size:128" json:"id"`
	UserID     UserID        `gorm:"size:128;not null;index" json:"userID"`
	CVRVersion int64         `gorm:"column:cvr_version;not null;default:0" json:"cvrVersion"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Client tracks the highest mutation id applied for one client.
// LastMutationID never decreases.
type Client struct {
	ID             ClientID      `gorm:"primaryKey;size:128" json:"id"`
	ClientGroupID  ClientGroupID `gorm:"size:128;not null;index" json:"clientGroupID"`
	LastMutationID int64         `gorm:"not null;default:0" json:"lastMutationID"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// MutationLogEntry is an immutable record of a received mutation. Entries are
// written for every mutation in a push, including replays and invalid ones.
type MutationLogEntry struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientGroupID ClientGroupID `gorm:"size:128;not null;index" json:"clientGroupID"`
	ClientID      ClientID      `gorm:"size:128;not null;index:idx_mutation_client" json:"clientID"`
	MutationID    int64         `gorm:"not null;index:idx_mutation_client" json:"mutationID"`
	Name          string        `gorm:"not null" json:"name"`
	Args          RawJSON       `gorm:"type:text" json:"args"`
	UserID        UserID        `gorm:"size:128;not null;index" json:"userID"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (MutationLogEntry) TableName() string {
	return "mutation_log"
}

// ClientView is a persisted client view record: the entity keys and versions a
// client group was sent in the pull that minted Cookie. Entries holds the
// CBOR encoding of that map. Snapshots are never modified after creation.
type ClientView struct {
	ClientGroupID ClientGroupID `gorm:"primaryKey;size:128" json:"clientGroupID"`
	Cookie        int64         `gorm:"primaryKey;autoIncrement:false" json:"cookie"`
	Entries       []byte        `gorm:"not null" json:"entries"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (ClientView) TableName() string {
	return "client_views"
}

// All returns every model managed by the SQL store, in migration order.
func All() []any {
	return []any{
		&Note{},
		&Block{},
		&ClientGroup{},
		&Client{},
		&MutationLogEntry{},
		&ClientView{},
	}
}
