package snapshot

import "encoding/json"

// OrderedMap is a string-keyed map that remembers insertion order, the
// way an IndexMap would. State.Store and State.Dirs need this: Go's
// encoding/json sorts plain map keys alphabetically on marshal, which
// would scramble the directory-entry ordering the capture algorithm
// relies on for deterministic diffing.
type OrderedMap[V any] struct {
	keys []string
	vals map[string]V
}

// NewOrderedMap returns an empty, ready-to-use map.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{vals: make(map[string]V)}
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Set inserts or overwrites key, preserving key's original position if
// it already existed.
func (m *OrderedMap[V]) Set(key string, value V) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = value
}

// Delete removes key if present. A no-op otherwise.
func (m *OrderedMap[V]) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. Callers must not mutate
// the returned slice.
func (m *OrderedMap[V]) Keys() []string {
	return m.keys
}

// Len reports the number of entries.
func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

type orderedPair[V any] struct {
	Key   string `json:"key"`
	Value V      `json:"value"`
}

// MarshalJSON renders the map as an ordered array of key/value pairs.
func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	pairs := make([]orderedPair[V], 0, len(m.keys))
	for _, k := range m.keys {
		pairs = append(pairs, orderedPair[V]{Key: k, Value: m.vals[k]})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	var pairs []orderedPair[V]
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	m.keys = make([]string, 0, len(pairs))
	m.vals = make(map[string]V, len(pairs))
	for _, p := range pairs {
		m.keys = append(m.keys, p.Key)
		m.vals[p.Key] = p.Value
	}
	return nil
}
