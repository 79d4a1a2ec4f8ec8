package engine

import (
	"context"
	"errors"
	"time"

	"github.com/notesync/notesync/pkg/cvr"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/store"
)

const (
	pullAttempts   = 3
	pullRetryDelay = 10 * time.Millisecond
)

// PullRequest asks for the changes since Cookie. A nil Cookie means the
// client has no usable state.
type PullRequest struct {
	ClientGroupID models.ClientGroupID `json:"clientGroupID"`
	Cookie        *int64               `json:"cookie"`
}

// PullResponse carries the patch from the presented cookie to Cookie and
// the last applied mutation id of every client in the group.
type PullResponse struct {
	Cookie                int64                     `json:"cookie"`
	LastMutationIDChanges map[models.ClientID]int64 `json:"lastMutationIDChanges"`
	Patch                 []cvr.PatchOp             `json:"patch"`
}

// Pull computes the patch for a client group. Everything is read from one
// snapshot; the new client view record and the cookie counter are written in
// the same transaction. When the state is unchanged since the presented
// cookie the same cookie is returned with an empty patch and nothing is
// written. A transaction that conflicts with a concurrent pull of the same
// group is retried.
func (e *Engine) Pull(ctx context.Context, userID models.UserID, req *PullRequest) (*PullResponse, error) {
	if userID.IsZero() {
		return nil, newError(KindAuthorization, "pull", "unauthenticated")
	}
	if req.ClientGroupID.IsZero() {
		return nil, newError(KindValidation, "pull", "clientGroupID is required")
	}

	var resp *PullResponse
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = e.pull(ctx, userID, req)
		if !errors.Is(err, store.ErrConflict) || attempt == pullAttempts {
			break
		}
		e.logger.Debug("Retrying pull after conflict",
			"client_group_id", req.ClientGroupID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, storageError("pull", ctx.Err())
		case <-time.After(time.Duration(attempt) * pullRetryDelay):
		}
	}
	if err != nil {
		e.logger.Warn("Pull failed", "client_group_id", req.ClientGroupID, "error", err)
		return nil, storageError("pull", err)
	}

	e.logger.Debug("Pulled",
		"client_group_id", req.ClientGroupID,
		"cookie", resp.Cookie,
		"ops", len(resp.Patch))
	return resp, nil
}

func (e *Engine) pull(ctx context.Context, userID models.UserID, req *PullRequest) (*PullResponse, error) {
	var resp *PullResponse
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		group, err := tx.EnsureClientGroup(ctx, req.ClientGroupID, userID)
		if err != nil {
			return err
		}
		if group.UserID != userID {
			return newError(KindAuthorization, "pull", "client group %s belongs to another user", req.ClientGroupID)
		}

		clients, err := tx.ListClients(ctx, req.ClientGroupID)
		if err != nil {
			return err
		}
		changes := make(map[models.ClientID]int64, len(clients))
		for _, c := range clients {
			changes[c.ID] = c.LastMutationID
		}

		next, rows, err := currentView(ctx, tx, userID)
		if err != nil {
			return err
		}

		var old cvr.CVR
		if req.Cookie != nil {
			view, err := tx.GetClientView(ctx, req.ClientGroupID, *req.Cookie)
			if err != nil {
				return err
			}
			if view != nil {
				if old, err = cvr.Decode(view.Entries); err != nil {
					return err
				}
			}
		}

		if old != nil && old.Equal(next) {
			resp = &PullResponse{
				Cookie:                *req.Cookie,
				LastMutationIDChanges: changes,
				Patch:                 []cvr.PatchOp{},
			}
			return nil
		}

		patch, err := cvr.Diff(old, next, func(key string) (any, bool) {
			row, ok := rows[key]
			return row, ok
		})
		if err != nil {
			return err
		}

		cookie, err := tx.NextCookie(ctx, req.ClientGroupID)
		if err != nil {
			return err
		}
		entries, err := cvr.Encode(next)
		if err != nil {
			return err
		}
		if err := tx.PutClientView(ctx, &models.ClientView{
			ClientGroupID: req.ClientGroupID,
			Cookie:        cookie,
			Entries:       entries,
		}); err != nil {
			return err
		}

		resp = &PullResponse{
			Cookie:                cookie,
			LastMutationIDChanges: changes,
			Patch:                 patch,
		}
		return nil
	}, store.WithSnapshot())
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// currentView returns the user's entity keys with their versions, and the
// rows behind them.
func currentView(ctx context.Context, tx store.VersionStore, userID models.UserID) (cvr.CVR, map[string]any, error) {
	notes, err := tx.ListNotes(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	blocks, err := tx.ListBlocks(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	next := make(cvr.CVR, len(notes)+len(blocks))
	rows := make(map[string]any, len(notes)+len(blocks))
	for _, n := range notes {
		next.Set(n.Key(), n.Version)
		rows[n.Key()] = n
	}
	for _, b := range blocks {
		next.Set(b.Key(), b.Version)
		rows[b.Key()] = b
	}
	return next, rows, nil
}
