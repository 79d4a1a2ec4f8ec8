package engine

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/mutation"
	"github.com/notesync/notesync/pkg/store"
)

// PushRequest is a batch of mutations from one client group.
type PushRequest struct {
	ClientGroupID models.ClientGroupID `json:"clientGroupID"`
	Mutations     []mutation.Mutation  `json:"mutations"`
}

// MutationStatus is the outcome of one mutation in a push.
type MutationStatus string

const (
	StatusApplied MutationStatus = "applied"
	// StatusSkipped marks a replay of an already applied mutation.
	StatusSkipped MutationStatus = "skipped"
	// StatusFailed marks a mutation that was consumed without effect.
	StatusFailed MutationStatus = "failed"
)

// ErrorInfo is the wire form of an Error.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

type MutationResult struct {
	ClientID models.ClientID `json:"clientID"`
	ID       int64           `json:"id"`
	Status   MutationStatus  `json:"status"`
	Error    *ErrorInfo      `json:"error,omitempty"`
}

type PushResponse struct {
	Results []MutationResult `json:"results"`
}

// Push applies a batch of mutations in mutation id order within a single
// transaction.
//
// Every mutation is appended to the mutation log. A mutation whose id is not
// above its client's last applied id is a replay and has no effect. A
// mutation rejected for validation, authorization or a missing target is
// logged, reported in the response and still consumes its id; the rest of
// the batch proceeds. A storage failure rolls back the whole batch.
//
// After a successful commit the user's subscribers are notified in the
// background.
func (e *Engine) Push(ctx context.Context, userID models.UserID, req *PushRequest) (*PushResponse, error) {
	if userID.IsZero() {
		return nil, newError(KindAuthorization, "push", "unauthenticated")
	}
	if req.ClientGroupID.IsZero() {
		return nil, newError(KindValidation, "push", "clientGroupID is required")
	}
	for _, m := range req.Mutations {
		if m.ClientID.IsZero() {
			return nil, newError(KindValidation, "push", "mutation %d has no clientID", m.ID)
		}
		if m.ID <= 0 {
			return nil, newError(KindValidation, "push", "mutation ids must be positive, got %d", m.ID)
		}
	}

	muts := slices.Clone(req.Mutations)
	sort.SliceStable(muts, func(i, j int) bool { return muts[i].ID < muts[j].ID })

	var results []MutationResult
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		results = make([]MutationResult, 0, len(muts))

		group, err := tx.EnsureClientGroup(ctx, req.ClientGroupID, userID)
		if err != nil {
			return err
		}
		if group.UserID != userID {
			return newError(KindAuthorization, "push", "client group %s belongs to another user", req.ClientGroupID)
		}

		clients := make(map[models.ClientID]*models.Client)
		for _, m := range muts {
			if _, ok := clients[m.ClientID]; ok {
				continue
			}
			c, err := tx.EnsureClient(ctx, m.ClientID, req.ClientGroupID)
			if err != nil {
				return err
			}
			if c.ClientGroupID != req.ClientGroupID {
				return newError(KindAuthorization, "push", "client %s belongs to another client group", m.ClientID)
			}
			clients[m.ClientID] = c
		}

		for _, m := range muts {
			if err := tx.AppendMutation(ctx, &models.MutationLogEntry{
				ClientGroupID: req.ClientGroupID,
				ClientID:      m.ClientID,
				MutationID:    m.ID,
				Name:          m.Name,
				Args:          models.RawJSON(m.Args),
				UserID:        userID,
			}); err != nil {
				return err
			}

			c := clients[m.ClientID]
			if m.ID <= c.LastMutationID {
				e.logger.Debug("Skipping replayed mutation",
					"client_id", m.ClientID, "mutation_id", m.ID, "last_mutation_id", c.LastMutationID)
				results = append(results, MutationResult{ClientID: m.ClientID, ID: m.ID, Status: StatusSkipped})
				continue
			}
			if m.ID > c.LastMutationID+1 {
				e.logger.Warn("Gap in mutation ids",
					"client_id", m.ClientID, "mutation_id", m.ID, "last_mutation_id", c.LastMutationID)
			}

			result := MutationResult{ClientID: m.ClientID, ID: m.ID, Status: StatusApplied}
			if err := e.apply(ctx, tx, userID, m); err != nil {
				var merr *Error
				if !errors.As(err, &merr) || merr.Kind == KindStorage {
					return err
				}
				merr.MutationID = m.ID
				e.logger.Warn("Mutation rejected",
					"client_id", m.ClientID,
					"mutation_id", m.ID,
					"name", m.Name,
					"kind", merr.Kind,
					"error", merr.Err)
				result.Status = StatusFailed
				result.Error = &ErrorInfo{Kind: merr.Kind, Message: merr.Error()}
			}

			if err := tx.SetLastMutationID(ctx, c.ID, m.ID); err != nil {
				return err
			}
			c.LastMutationID = m.ID
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("Push failed", "client_group_id", req.ClientGroupID, "error", err)
		return nil, storageError("push", err)
	}

	e.logger.Debug("Pushed", "client_group_id", req.ClientGroupID, "mutations", len(muts))
	e.notify(userID)
	return &PushResponse{Results: results}, nil
}
