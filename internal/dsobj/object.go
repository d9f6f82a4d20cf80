// Package dsobj provides the directory object representation used across
// the bridge: an ordered, case-insensitive attribute map that preserves the
// original casing of attribute names for output.
package dsobj

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Pair is a single attribute name/value pair used for ordered construction.
type Pair struct {
	Key   string
	Value any
}

type entry struct {
	key   string // casing of the first assignment for this folded key
	value any
}

// Object is an ordered mapping from attribute name to decoded value.
//
// Lookup, assignment, deletion and containment are case-insensitive; the
// casing used on the first assignment of a given key is retained and used
// for iteration and serialization. Overwriting a key with different casing
// updates the value but keeps the remembered casing; only delete followed
// by set replaces it.
type Object struct {
	order   []string          // folded keys in insertion order
	entries map[string]*entry // folded key -> entry
}

// New creates an empty Object.
func New() *Object {
	return &Object{entries: make(map[string]*entry)}
}

// FromPairs creates an Object from an ordered pair list.
func FromPairs(pairs ...Pair) *Object {
	o := New()
	for _, p := range pairs {
		o.Set(p.Key, p.Value)
	}
	return o
}

func fold(key string) string {
	return strings.ToLower(key)
}

// Set assigns value under key. A new folded key is appended to the
// iteration order; an existing one keeps its position and original casing.
func (o *Object) Set(key string, value any) {
	f := fold(key)
	if e, ok := o.entries[f]; ok {
		e.value = value
		return
	}
	o.entries[f] = &entry{key: key, value: value}
	o.order = append(o.order, f)
}

// Get returns the value stored under key (any casing) and whether it exists.
func (o *Object) Get(key string) (any, bool) {
	e, ok := o.entries[fold(key)]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetString returns the value under key as a string, or "" if absent or not
// a string.
func (o *Object) GetString(key string) string {
	v, ok := o.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether key is present under any casing.
func (o *Object) Has(key string) bool {
	_, ok := o.entries[fold(key)]
	return ok
}

// Delete removes key and forgets its remembered casing.
func (o *Object) Delete(key string) {
	f := fold(key)
	if _, ok := o.entries[f]; !ok {
		return
	}
	delete(o.entries, f)
	for i, k := range o.order {
		if k == f {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of attributes.
func (o *Object) Len() int {
	return len(o.order)
}

// Keys returns attribute names in insertion order with original casing.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.order))
	for _, f := range o.order {
		keys = append(keys, o.entries[f].key)
	}
	return keys
}

// Pairs returns all attributes in insertion order.
func (o *Object) Pairs() []Pair {
	pairs := make([]Pair, 0, len(o.order))
	for _, f := range o.order {
		e := o.entries[f]
		pairs = append(pairs, Pair{Key: e.key, Value: e.value})
	}
	return pairs
}

// Update applies every pair of other in order, so later sources win.
func (o *Object) Update(other *Object) {
	if other == nil {
		return
	}
	for _, p := range other.Pairs() {
		o.Set(p.Key, p.Value)
	}
}

// UpdatePairs applies an ordered pair list.
func (o *Object) UpdatePairs(pairs ...Pair) {
	for _, p := range pairs {
		o.Set(p.Key, p.Value)
	}
}

// Copy returns an independent Object with its own casing table.
func (o *Object) Copy() *Object {
	c := New()
	for _, p := range o.Pairs() {
		c.Set(p.Key, p.Value)
	}
	return c
}

// MarshalJSON serializes attributes in insertion order with original casing.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		e := o.entries[f]
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("marshal attribute %q: %w", e.key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving member order.
func (o *Object) UnmarshalJSON(data []byte) error {
	o.order = nil
	o.entries = make(map[string]*entry)

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode attribute %q: %w", key, err)
		}
		o.Set(key, value)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// String renders the object for logs, masking nothing.
func (o *Object) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range o.Pairs() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", p.Key, p.Value)
	}
	b.WriteByte('}')
	return b.String()
}
