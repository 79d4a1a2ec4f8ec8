// Package cvr implements client view records and the diff between them.
//
// A client view record (CVR) maps every entity key a client group has been
// sent to the version it was sent at. Comparing the record from the client's
// last pull with a record of the current state yields the minimal patch that
// brings the client up to date.
package cvr

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// CVR maps entity keys to versions.
type CVR map[string]int64

// Equal reports whether both records hold the same keys at the same versions.
// A nil record equals only another empty record.
func (c CVR) Equal(other CVR) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Set records key at version.
func (c CVR) Set(key string, version int64) {
	c[key] = version
}

// Keys returns the keys in sorted order.
func (c CVR) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode serializes the record for storage.
func Encode(c CVR) ([]byte, error) {
	if c == nil {
		c = CVR{}
	}
	data, err := cborEncMode.Marshal(map[string]int64(c))
	if err != nil {
		return nil, fmt.Errorf("encode cvr: %w", err)
	}
	return data, nil
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (CVR, error) {
	c := CVR{}
	if len(data) == 0 {
		return c, nil
	}
	if err := cbor.Unmarshal(data, (*map[string]int64)(&c)); err != nil {
		return nil, fmt.Errorf("decode cvr: %w", err)
	}
	return c, nil
}

// Canonical encoding sorts map keys, so equal records encode to equal bytes.
var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()
