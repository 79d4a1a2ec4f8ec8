package cvr

import (
	"encoding/json"
	"fmt"
)

// Op is the kind of a patch operation.
type Op string

const (
	OpClear Op = "clear"
	OpPut   Op = "put"
	OpDel   Op = "del"
)

// PatchOp is one instruction for the client. Key is empty for OpClear and
// Value is set only for OpPut.
type PatchOp struct {
	Op    Op
	Key   string
	Value any
}

// Clear drops every entry in the client's local store.
func Clear() PatchOp { return PatchOp{Op: OpClear} }

// Put writes value under key.
func Put(key string, value any) PatchOp { return PatchOp{Op: OpPut, Key: key, Value: value} }

// Del removes key.
func Del(key string) PatchOp { return PatchOp{Op: OpDel, Key: key} }

type wireOp struct {
	Op    Op              `json:"op"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (p PatchOp) MarshalJSON() ([]byte, error) {
	switch p.Op {
	case OpClear:
		return json.Marshal(wireOp{Op: OpClear})
	case OpDel:
		return json.Marshal(wireOp{Op: OpDel, Key: p.Key})
	case OpPut:
		value, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value of %s: %w", p.Key, err)
		}
		return json.Marshal(wireOp{Op: OpPut, Key: p.Key, Value: value})
	default:
		return nil, fmt.Errorf("unknown patch op %q", p.Op)
	}
}

// UnmarshalJSON decodes a patch operation. Put values are kept as
// json.RawMessage.
func (p *PatchOp) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Op {
	case OpClear:
		*p = Clear()
	case OpDel:
		*p = Del(w.Key)
	case OpPut:
		*p = Put(w.Key, w.Value)
	default:
		return fmt.Errorf("unknown patch op %q", w.Op)
	}
	return nil
}

// Lookup returns the current row for an entity key.
type Lookup func(key string) (any, bool)

// Diff computes the patch that turns a client holding old into one holding
// next. A nil old means the client has nothing usable: the patch starts with
// a clear and puts every key. Otherwise keys missing from next are deleted
// and keys that are new or carry a different version are put. A lower
// version means the row was deleted and recreated since old was taken.
//
// The result is ordered clear, deletes, puts, each sorted by key. Put values
// come from lookup; a key lookup cannot resolve is an error because next and
// the rows must come from the same snapshot.
func Diff(old, next CVR, lookup Lookup) ([]PatchOp, error) {
	patch := make([]PatchOp, 0)
	if old == nil {
		patch = append(patch, Clear())
	} else {
		for _, key := range old.Keys() {
			if _, ok := next[key]; !ok {
				patch = append(patch, Del(key))
			}
		}
	}

	for _, key := range next.Keys() {
		if old != nil {
			if prev, ok := old[key]; ok && next[key] == prev {
				continue
			}
		}
		value, ok := lookup(key)
		if !ok {
			return nil, fmt.Errorf("no row for %s", key)
		}
		patch = append(patch, Put(key, value))
	}
	return patch, nil
}
