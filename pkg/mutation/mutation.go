// Package mutation defines the mutations clients may push and validates
// their arguments.
package mutation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/notesync/notesync/pkg/models"
)

// Mutation names.
const (
	CreateNote = "createNote"
	UpdateNote = "updateNote"
	DeleteNote = "deleteNote"
)

// ErrUnknown is returned by Decode for a name with no registered schema.
var ErrUnknown = errors.New("unknown mutation")

// Mutation is one client-issued operation as it travels in a push.
type Mutation struct {
	ClientID models.ClientID `json:"clientID"`
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
}

// Args is the decoded argument value of a mutation.
type Args interface {
	MutationName() string
}

// CreateNoteArgs creates a note. OwnerID, when present, must match the
// pushing user.
type CreateNoteArgs struct {
	ID      models.NoteID `json:"id" validate:"required,max=128"`
	Title   string        `json:"title" validate:"max=512"`
	Content string        `json:"content" validate:"max=1048576"`
	Path    string        `json:"path,omitempty" validate:"max=1024"`
	OwnerID models.UserID `json:"ownerID,omitempty" validate:"max=128"`
}

func (CreateNoteArgs) MutationName() string { return CreateNote }

// UpdateNoteArgs changes the fields that are set.
type UpdateNoteArgs struct {
	ID      models.NoteID `json:"id" validate:"required,max=128"`
	Title   *string       `json:"title,omitempty" validate:"omitempty,max=512"`
	Content *string       `json:"content,omitempty" validate:"omitempty,max=1048576"`
	Path    *string       `json:"path,omitempty" validate:"omitempty,max=1024"`
}

func (UpdateNoteArgs) MutationName() string { return UpdateNote }

// DeleteNoteArgs deletes a note and its blocks.
type DeleteNoteArgs struct {
	ID models.NoteID `json:"id" validate:"required,max=128"`
}

func (DeleteNoteArgs) MutationName() string { return DeleteNote }

var schemas = map[string]func() Args{
	CreateNote: func() Args { return &CreateNoteArgs{} },
	UpdateNote: func() Args { return &UpdateNoteArgs{} },
	DeleteNote: func() Args { return &DeleteNoteArgs{} },
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Names returns the registered mutation names.
func Names() []string {
	return []string{CreateNote, UpdateNote, DeleteNote}
}

// Decode parses and validates the arguments of the named mutation. The
// returned value is a pointer to one of the *Args types. Unknown fields are
// rejected.
func Decode(name string, raw json.RawMessage) (Args, error) {
	newArgs, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%s: missing args", name)
	}

	args := newArgs()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("%s: invalid args: %w", name, err)
	}
	if err := validate.Struct(args); err != nil {
		return nil, fmt.Errorf("%s: invalid args: %w", name, err)
	}
	return args, nil
}

// New builds a Mutation carrying args.
func New(clientID models.ClientID, id int64, args Args) (Mutation, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Mutation{}, fmt.Errorf("marshal %s args: %w", args.MutationName(), err)
	}
	return Mutation{
		ClientID: clientID,
		ID:       id,
		Name:     args.MutationName(),
		Args:     raw,
	}, nil
}
