package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "fold-1", "fold-1"},
		{"path-like", "a/b", "a/b"},
		{"backslashes", `a\b\c`, "a/b/c"},
		{"mixed separators", `a\b/c`, "a/b/c"},
		{"trailing separator", "a/b/", "a/b"},
		{"doubled separator", "a//b", "a/b"},
		{"leading separator", "/a/b", "a/b"},
		{"empty", "", ""},
		{"only separators", "///", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestSubname(t *testing.T) {
	assert.Equal(t, "a/b/model", Subname("a/b", "model"))
	assert.Equal(t, "a/b", Subname("a/b", ""))
	assert.Equal(t, "model", Subname("", "model"))
	assert.Equal(t, "a/b/c/d", Subname(`a\b`, "c/d"))
}

func TestNormalize_UnicodeNFC(t *testing.T) {
	// e + combining acute normalizes to the precomposed form.
	decomposed := "fold-é"
	precomposed := "fold-\u00e9"

	assert.Equal(t, Normalize(precomposed), Normalize(decomposed))
}
