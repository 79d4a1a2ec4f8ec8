package notesynctesting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/notesync/notesync/pkg/cvr"
	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/mutation"
)

// Transport carries pushes and pulls for one user. Both the engine itself
// (through EngineTransport) and the HTTP client implement it.
type Transport interface {
	Pull(ctx context.Context, req *engine.PullRequest) (*engine.PullResponse, error)
	Push(ctx context.Context, req *engine.PushRequest) (*engine.PushResponse, error)
}

// EngineTransport calls an Engine directly on behalf of UserID.
type EngineTransport struct {
	Engine *engine.Engine
	UserID models.UserID
}

func (t EngineTransport) Pull(ctx context.Context, req *engine.PullRequest) (*engine.PullResponse, error) {
	return t.Engine.Pull(ctx, t.UserID, req)
}

func (t EngineTransport) Push(ctx context.Context, req *engine.PushRequest) (*engine.PushResponse, error) {
	return t.Engine.Push(ctx, t.UserID, req)
}

// Replica is a minimal sync client: one client in one client group keeping
// a local copy of every entity it has been sent.
//
// Mutations are queued by CreateNote, UpdateNote and DeleteNote and stay
// pending until a pull reports them applied, so a failed push is simply
// retried by the next Sync.
type Replica struct {
	GroupID  models.ClientGroupID
	ClientID models.ClientID

	transport      Transport
	cookie         *int64
	nextMutationID int64
	lastMutationID int64
	pending        []mutation.Mutation
	entities       map[string]json.RawMessage
}

// NewReplica returns a replica with fresh group and client ids.
func NewReplica(transport Transport) *Replica {
	return &Replica{
		GroupID:        models.ClientGroupID("cg-" + uuid.NewString()),
		ClientID:       models.ClientID("c-" + uuid.NewString()),
		transport:      transport,
		nextMutationID: 1,
		entities:       make(map[string]json.RawMessage),
	}
}

// NewReplicaInGroup returns a second client sharing other's client group.
// The two replicas keep separate local copies.
func NewReplicaInGroup(transport Transport, other *Replica) *Replica {
	r := NewReplica(transport)
	r.GroupID = other.GroupID
	return r
}

// Mutate queues a mutation and returns its id.
func (r *Replica) Mutate(args mutation.Args) (int64, error) {
	m, err := mutation.New(r.ClientID, r.nextMutationID, args)
	if err != nil {
		return 0, err
	}
	r.nextMutationID++
	r.pending = append(r.pending, m)
	return m.ID, nil
}

func (r *Replica) CreateNote(id models.NoteID, title, content string) (int64, error) {
	return r.Mutate(&mutation.CreateNoteArgs{ID: id, Title: title, Content: content})
}

func (r *Replica) UpdateContent(id models.NoteID, content string) (int64, error) {
	return r.Mutate(&mutation.UpdateNoteArgs{ID: id, Content: &content})
}

func (r *Replica) DeleteNote(id models.NoteID) (int64, error) {
	return r.Mutate(&mutation.DeleteNoteArgs{ID: id})
}

// Push sends every pending mutation. An empty queue sends nothing.
func (r *Replica) Push(ctx context.Context) (*engine.PushResponse, error) {
	if len(r.pending) == 0 {
		return &engine.PushResponse{}, nil
	}
	return r.transport.Push(ctx, &engine.PushRequest{
		ClientGroupID: r.GroupID,
		Mutations:     append([]mutation.Mutation(nil), r.pending...),
	})
}

// Pull fetches and applies the patch since the replica's cookie.
func (r *Replica) Pull(ctx context.Context) (*engine.PullResponse, error) {
	resp, err := r.transport.Pull(ctx, &engine.PullRequest{
		ClientGroupID: r.GroupID,
		Cookie:        r.cookie,
	})
	if err != nil {
		return nil, err
	}
	if err := ApplyPatch(r.entities, resp.Patch); err != nil {
		return nil, err
	}
	cookie := resp.Cookie
	r.cookie = &cookie

	if id, ok := resp.LastMutationIDChanges[r.ClientID]; ok && id > r.lastMutationID {
		r.lastMutationID = id
	}
	kept := r.pending[:0]
	for _, m := range r.pending {
		if m.ID > r.lastMutationID {
			kept = append(kept, m)
		}
	}
	r.pending = kept
	return resp, nil
}

// Sync pushes pending mutations and then pulls.
func (r *Replica) Sync(ctx context.Context) error {
	if _, err := r.Push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if _, err := r.Pull(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

// Cookie returns the last cookie received, or nil before the first pull.
func (r *Replica) Cookie() *int64 {
	return r.cookie
}

// ForgetCookie makes the next pull start from scratch.
func (r *Replica) ForgetCookie() {
	r.cookie = nil
}

func (r *Replica) LastMutationID() int64 {
	return r.lastMutationID
}

func (r *Replica) Pending() int {
	return len(r.pending)
}

// Entities returns a copy of the local store.
func (r *Replica) Entities() map[string]json.RawMessage {
	return maps.Clone(r.entities)
}

// Note decodes the local copy of a note.
func (r *Replica) Note(id models.NoteID) (*models.Note, bool) {
	raw, ok := r.entities[models.NoteKey(id)]
	if !ok {
		return nil, false
	}
	var n models.Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, false
	}
	return &n, true
}

// Blocks decodes the local copies of every block of a note.
func (r *Replica) Blocks(noteID models.NoteID) []*models.Block {
	var blocks []*models.Block
	for key, raw := range r.entities {
		kind, _, err := models.ParseEntityKey(key)
		if err != nil || kind != models.KindBlock {
			continue
		}
		var b models.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			continue
		}
		if b.NoteID != nil && *b.NoteID == noteID {
			blocks = append(blocks, &b)
		}
	}
	return blocks
}

// ApplyPatch applies patch to entities in order. Put values may be
// json.RawMessage, as decoded from the wire, or any JSON-marshalable row.
// Stored values are compacted so copies built from different sources compare
// equal.
func ApplyPatch(entities map[string]json.RawMessage, patch []cvr.PatchOp) error {
	for _, op := range patch {
		switch op.Op {
		case cvr.OpClear:
			clear(entities)
		case cvr.OpDel:
			delete(entities, op.Key)
		case cvr.OpPut:
			raw, ok := op.Value.(json.RawMessage)
			if !ok {
				var err error
				if raw, err = json.Marshal(op.Value); err != nil {
					return fmt.Errorf("marshal %s: %w", op.Key, err)
				}
			}
			var buf bytes.Buffer
			if err := json.Compact(&buf, raw); err != nil {
				return fmt.Errorf("compact %s: %w", op.Key, err)
			}
			entities[op.Key] = buf.Bytes()
		default:
			return fmt.Errorf("unknown patch op %q", op.Op)
		}
	}
	return nil
}
