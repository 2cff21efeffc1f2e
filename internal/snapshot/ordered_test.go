package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)
	assert.Equal(t, []string{"c", "a", "b"}, m.Keys())

	m.Set("a", 10)
	assert.Equal(t, []string{"c", "a", "b"}, m.Keys(), "re-setting a key keeps its position")
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestOrderedMapDelete(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Delete("a")
	assert.Equal(t, []string{"b"}, m.Keys())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestOrderedMapJSONRoundTrip(t *testing.T) {
	m := NewOrderedMap[string]()
	m.Set("z", "first")
	m.Set("a", "second")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `[{"key":"z","value":"first"},{"key":"a","value":"second"}]`, string(data))

	out := NewOrderedMap[string]()
	require.NoError(t, json.Unmarshal(data, out))
	assert.Equal(t, []string{"z", "a"}, out.Keys())
}
