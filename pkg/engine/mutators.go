package engine

import (
	"context"

	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/mutation"
	"github.com/notesync/notesync/pkg/store"
)

// apply validates m and performs its effect. Rejections come back as *Error;
// any other error is a storage failure.
func (e *Engine) apply(ctx context.Context, tx store.Tx, userID models.UserID, m mutation.Mutation) error {
	args, err := mutation.Decode(m.Name, m.Args)
	if err != nil {
		return &Error{Kind: KindValidation, Op: m.Name, Err: err}
	}

	switch a := args.(type) {
	case *mutation.CreateNoteArgs:
		return e.createNote(ctx, tx, userID, a)
	case *mutation.UpdateNoteArgs:
		return e.updateNote(ctx, tx, userID, a)
	case *mutation.DeleteNoteArgs:
		return e.deleteNote(ctx, tx, userID, a)
	default:
		return newError(KindValidation, m.Name, "no handler for %T", args)
	}
}

func (e *Engine) createNote(ctx context.Context, tx store.Tx, userID models.UserID, a *mutation.CreateNoteArgs) error {
	if !a.OwnerID.IsZero() && a.OwnerID != userID {
		return newError(KindAuthorization, mutation.CreateNote, "cannot create note %s for %s", a.ID, a.OwnerID)
	}

	existing, err := tx.GetNote(ctx, a.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.OwnerID != userID {
			return newError(KindAuthorization, mutation.CreateNote, "note %s belongs to another user", a.ID)
		}
		e.logger.Debug("Note already exists", "note_id", a.ID)
		return nil
	}

	blocks, err := e.parser.Parse(a.Content, a.Path, userID, a.ID)
	if err != nil {
		return &Error{Kind: KindValidation, Op: mutation.CreateNote, Err: err}
	}

	note := &models.Note{
		ID:      a.ID,
		OwnerID: userID,
		Title:   a.Title,
		Content: a.Content,
		Path:    a.Path,
	}
	if err := tx.CreateNote(ctx, note); err != nil {
		return err
	}
	return tx.ReplaceBlocks(ctx, note, blocks)
}

func (e *Engine) updateNote(ctx context.Context, tx store.Tx, userID models.UserID, a *mutation.UpdateNoteArgs) error {
	note, err := tx.GetNote(ctx, a.ID)
	if err != nil {
		return err
	}
	if note == nil {
		return newError(KindNotFound, mutation.UpdateNote, "note %s does not exist", a.ID)
	}
	if note.OwnerID != userID {
		return newError(KindAuthorization, mutation.UpdateNote, "note %s belongs to another user", a.ID)
	}

	reparse := false
	if a.Title != nil {
		note.Title = *a.Title
	}
	if a.Content != nil && *a.Content != note.Content {
		note.Content = *a.Content
		reparse = true
	}
	if a.Path != nil && *a.Path != note.Path {
		note.Path = *a.Path
		reparse = true
	}

	// Parse before writing so a parse failure leaves the note untouched.
	var blocks []*models.Block
	if reparse {
		if blocks, err = e.parser.Parse(note.Content, note.Path, userID, note.ID); err != nil {
			return &Error{Kind: KindValidation, Op: mutation.UpdateNote, Err: err}
		}
	}

	if err := tx.UpdateNote(ctx, note); err != nil {
		return err
	}
	if !reparse {
		return nil
	}
	return tx.ReplaceBlocks(ctx, note, blocks)
}

func (e *Engine) deleteNote(ctx context.Context, tx store.Tx, userID models.UserID, a *mutation.DeleteNoteArgs) error {
	note, err := tx.GetNote(ctx, a.ID)
	if err != nil {
		return err
	}
	if note == nil {
		return newError(KindNotFound, mutation.DeleteNote, "note %s does not exist", a.ID)
	}
	if note.OwnerID != userID {
		return newError(KindAuthorization, mutation.DeleteNote, "note %s belongs to another user", a.ID)
	}
	return tx.DeleteNote(ctx, a.ID)
}
