package tracking

import "encoding/json"

// TagSet is an immutable string-to-string tag mapping with optional protected
// keys. Mutating operations return a new TagSet; writes to protected keys are
// silently dropped so that identity tags such as ParentRunIDTag cannot be
// rewritten after run creation.
type TagSet struct {
	values    map[string]string
	protected map[string]struct{}
}

// NewTagSet builds a TagSet from a plain map. The input is copied.
func NewTagSet(values map[string]string) TagSet {
	t := TagSet{values: make(map[string]string, len(values))}
	for k, v := range values {
		t.values[k] = v
	}
	return t
}

// WithProtectedKeys returns a copy of the TagSet on which writes to the given
// keys are dropped. Protection accumulates across calls.
func (t TagSet) WithProtectedKeys(keys ...string) TagSet {
	out := t.clone()
	if out.protected == nil {
		out.protected = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		out.protected[k] = struct{}{}
	}
	return out
}

// Set returns a copy with key set to value. Setting a protected key returns
// the receiver unchanged.
func (t TagSet) Set(key, value string) TagSet {
	if t.IsProtected(key) {
		return t
	}
	out := t.clone()
	out.values[key] = value
	return out
}

// Without returns a copy with key removed. Protected keys cannot be removed.
func (t TagSet) Without(key string) TagSet {
	if t.IsProtected(key) {
		return t
	}
	out := t.clone()
	delete(out.values, key)
	return out
}

// Get returns the value for key and whether it is present.
func (t TagSet) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Value returns the value for key, or "" when absent.
func (t TagSet) Value(key string) string {
	return t.values[key]
}

// IsProtected reports whether key is write-protected.
func (t TagSet) IsProtected(key string) bool {
	_, ok := t.protected[key]
	return ok
}

// Len returns the number of tags.
func (t TagSet) Len() int {
	return len(t.values)
}

// Map returns a plain-map copy of the tags.
func (t TagSet) Map() map[string]string {
	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

func (t TagSet) clone() TagSet {
	out := TagSet{values: make(map[string]string, len(t.values))}
	for k, v := range t.values {
		out.values[k] = v
	}
	if t.protected != nil {
		out.protected = make(map[string]struct{}, len(t.protected))
		for k := range t.protected {
			out.protected[k] = struct{}{}
		}
	}
	return out
}

// MarshalJSON encodes the tag values as a plain JSON object. Protection is a
// client-side concern and does not travel with the tags.
func (t TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.values)
}

// UnmarshalJSON decodes a plain JSON object into tag values.
func (t *TagSet) UnmarshalJSON(data []byte) error {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*t = NewTagSet(values)
	return nil
}
