package models

import (
	"fmt"
	"strings"
)

// EntityKind is the prefix of an entity key.
type EntityKind string

const (
	KindNote  EntityKind = "note"
	KindBlock EntityKind = "block"
)

// NoteKey returns the client view key of a note, "note/<id>".
func NoteKey(id NoteID) string {
	return string(KindNote) + "/" + string(id)
}

// BlockKey returns the client view key of a block, "block/<id>".
func BlockKey(id BlockID) string {
	return string(KindBlock) + "/" + string(id)
}

// ParseEntityKey splits an entity key into its kind and id.
func ParseEntityKey(key string) (EntityKind, string, error) {
	kind, id, ok := strings.Cut(key, "/")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid entity key %q", key)
	}
	switch EntityKind(kind) {
	case KindNote, KindBlock:
		return EntityKind(kind), id, nil
	default:
		return "", "", fmt.Errorf("unknown entity kind %q in key %q", kind, key)
	}
}
