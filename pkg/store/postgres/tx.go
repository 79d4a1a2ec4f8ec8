package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const blockBatchSize = 100

type gormTx struct {
	db       *gorm.DB
	lockRows bool
}

var _ store.Tx = (*gormTx)(nil)

func (t *gormTx) with(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

// Note operations

func (t *gormTx) GetNote(ctx context.Context, id models.NoteID) (*models.Note, error) {
	var note models.Note
	err := t.with(ctx).First(&note, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

func (t *gormTx) CreateNote(ctx context.Context, note *models.Note) error {
	note.Version = 1
	return t.with(ctx).Create(note).Error
}

func (t *gormTx) UpdateNote(ctx context.Context, note *models.Note) error {
	res := t.with(ctx).Model(&models.Note{}).Where("id = ?", note.ID).Updates(map[string]any{
		"title":      note.Title,
		"content":    note.Content,
		"path":       note.Path,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update note %s: %w", note.ID, gorm.ErrRecordNotFound)
	}
	return t.with(ctx).Where("id = ?", note.ID).Take(note).Error
}

func (t *gormTx) DeleteNote(ctx context.Context, id models.NoteID) error {
	if err := t.with(ctx).Where("note_id = ?", id).Delete(&models.Block{}).Error; err != nil {
		return err
	}
	return t.with(ctx).Delete(&models.Note{}, "id = ?", id).Error
}

func (t *gormTx) ListNotes(ctx context.Context, ownerID models.UserID) ([]*models.Note, error) {
	var notes []*models.Note
	err := t.with(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&notes).Error
	return notes, err
}

// Block operations

func (t *gormTx) ReplaceBlocks(ctx context.Context, note *models.Note, blocks []*models.Block) error {
	if err := t.with(ctx).Where("note_id = ?", note.ID).Delete(&models.Block{}).Error; err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}
	for _, b := range blocks {
		noteID := note.ID
		if b.ID.IsZero() {
			b.ID = models.NewBlockID()
		}
		b.OwnerID = note.OwnerID
		b.NoteID = &noteID
		b.Version = 1
		if b.Path == "" {
			b.Path = note.Path
		}
	}
	return t.with(ctx).CreateInBatches(blocks, blockBatchSize).Error
}

func (t *gormTx) ListBlocks(ctx context.Context, ownerID models.UserID) ([]*models.Block, error) {
	var blocks []*models.Block
	err := t.with(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&blocks).Error
	return blocks, err
}

// Mutation log operations

func (t *gormTx) AppendMutation(ctx context.Context, entry *models.MutationLogEntry) error {
	return t.with(ctx).Create(entry).Error
}

func (t *gormTx) ListMutations(ctx context.Context, clientID models.ClientID) ([]*models.MutationLogEntry, error) {
	var entries []*models.MutationLogEntry
	err := t.with(ctx).Where("client_id = ?", clientID).Order("id").Find(&entries).Error
	return entries, err
}

// Client state operations

func (t *gormTx) EnsureClientGroup(ctx context.Context, id models.ClientGroupID, userID models.UserID) (*models.ClientGroup, error) {
	err := t.with(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ClientGroup{
		ID:     id,
		UserID: userID,
	}).Error
	if err != nil {
		return nil, err
	}

	var group models.ClientGroup
	if err := t.with(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (t *gormTx) EnsureClient(ctx context.Context, id models.ClientID, groupID models.ClientGroupID) (*models.Client, error) {
	err := t.with(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Client{
		ID:            id,
		ClientGroupID: groupID,
	}).Error
	if err != nil {
		return nil, err
	}

	var client models.Client
	q := t.with(ctx)
	if t.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&client, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (t *gormTx) SetLastMutationID(ctx context.Context, id models.ClientID, mutationID int64) error {
	return t.with(ctx).Model(&models.Client{}).
		Where("id = ? AND last_mutation_id < ?", id, mutationID).
		Updates(map[string]any{
			"last_mutation_id": mutationID,
			"updated_at":       time.Now(),
		}).Error
}

func (t *gormTx) ListClients(ctx context.Context, groupID models.ClientGroupID) ([]*models.Client, error) {
	var clients []*models.Client
	err := t.with(ctx).Where("client_group_id = ?", groupID).Order("id").Find(&clients).Error
	return clients, err
}

func (t *gormTx) NextCookie(ctx context.Context, groupID models.ClientGroupID) (int64, error) {
	var cookies []int64
	err := t.with(ctx).Raw(
		"UPDATE client_groups SET cvr_version = cvr_version + 1, updated_at = ? WHERE id = ? RETURNING cvr_version",
		time.Now(), groupID,
	).Scan(&cookies).Error
	if err != nil {
		return 0, err
	}
	if len(cookies) == 0 {
		return 0, fmt.Errorf("client group %s: %w", groupID, gorm.ErrRecordNotFound)
	}
	return cookies[0], nil
}

// Client view operations

func (t *gormTx) GetClientView(ctx context.Context, groupID models.ClientGroupID, cookie int64) (*models.ClientView, error) {
	var view models.ClientView
	err := t.with(ctx).First(&view, "client_group_id = ? AND cookie = ?", groupID, cookie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

func (t *gormTx) PutClientView(ctx context.Context, view *models.ClientView) error {
	return t.with(ctx).Create(view).Error
}
