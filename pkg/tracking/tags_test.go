package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagSet_SetAndGet(t *testing.T) {
	tags := NewTagSet(map[string]string{"team": "ml"})

	updated := tags.Set("stage", "prod")

	v, ok := updated.Get("stage")
	require.True(t, ok)
	assert.Equal(t, "prod", v)

	// Original is untouched.
	_, ok = tags.Get("stage")
	assert.False(t, ok)
}

func TestTagSet_ProtectedKeyWriteDropped(t *testing.T) {
	tags := NewTagSet(map[string]string{
		ParentRunIDTag: "parent-123",
	}).WithProtectedKeys(ParentRunIDTag)

	after := tags.Set(ParentRunIDTag, "other-parent")

	assert.Equal(t, "parent-123", after.Value(ParentRunIDTag))
	assert.True(t, after.IsProtected(ParentRunIDTag))
}

func TestTagSet_ProtectedKeyCannotBeRemoved(t *testing.T) {
	tags := NewTagSet(map[string]string{
		ParentRunIDTag: "parent-123",
	}).WithProtectedKeys(ParentRunIDTag)

	after := tags.Without(ParentRunIDTag)

	assert.Equal(t, "parent-123", after.Value(ParentRunIDTag))
}

func TestTagSet_WithoutUnprotectedKey(t *testing.T) {
	tags := NewTagSet(map[string]string{
		RunNameTag: "inherited-name",
		"team":     "ml",
	})

	after := tags.Without(RunNameTag)

	_, ok := after.Get(RunNameTag)
	assert.False(t, ok)
	assert.Equal(t, "ml", after.Value("team"))
}

func TestTagSet_MapReturnsCopy(t *testing.T) {
	tags := NewTagSet(map[string]string{"a": "1"})

	m := tags.Map()
	m["a"] = "mutated"

	assert.Equal(t, "1", tags.Value("a"))
}

func TestTagSet_ProtectionAccumulates(t *testing.T) {
	tags := NewTagSet(nil).
		WithProtectedKeys("a").
		WithProtectedKeys("b")

	assert.True(t, tags.IsProtected("a"))
	assert.True(t, tags.IsProtected("b"))
	assert.False(t, tags.IsProtected("c"))
}

func TestTagSet_JSONRoundTrip(t *testing.T) {
	tags := NewTagSet(map[string]string{"a": "1", "b": "2"})

	data, err := tags.MarshalJSON()
	require.NoError(t, err)

	var decoded TagSet
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, tags.Map(), decoded.Map())
}
