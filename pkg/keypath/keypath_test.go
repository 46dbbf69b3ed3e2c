package keypath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_Recursive(t *testing.T) {
	input := map[string]interface{}{
		"flavor": "sklearn",
		"save_args": map[string]interface{}{
			"registered_model_name": "model",
			"await_registration": map[string]interface{}{
				"seconds": 30,
			},
		},
	}

	flat := Flatten(input, true, ".")

	assert.Equal(t, map[string]interface{}{
		"flavor":                               "sklearn",
		"save_args.registered_model_name":      "model",
		"save_args.await_registration.seconds": 30,
	}, flat)
}

func TestFlatten_SingleLevel(t *testing.T) {
	input := map[string]interface{}{
		"save_args": map[string]interface{}{
			"registered_model_name": "model",
			"nested": map[string]interface{}{
				"deep": true,
			},
		},
	}

	flat := Flatten(input, false, ".")

	assert.Equal(t, "model", flat["save_args.registered_model_name"])
	// Grandchildren stay nested when recursion is off.
	assert.Equal(t, map[string]interface{}{"deep": true}, flat["save_args.nested"])
}

func TestFlatten_NonStringKeys(t *testing.T) {
	input := map[string]interface{}{
		"steps": map[interface{}]interface{}{
			1:    "first",
			2.5:  "half",
			true: "flag",
		},
	}

	flat := Flatten(input, true, ".")

	assert.Equal(t, "first", flat["steps.1"])
	assert.Equal(t, "half", flat["steps.2.5"])
	assert.Equal(t, "flag", flat["steps.true"])
}

func TestUnflatten(t *testing.T) {
	flat := map[string]interface{}{
		"flavor":                          "sklearn",
		"save_args.registered_model_name": "model",
		"save_args.signature":             "infer",
	}

	nested := Unflatten(flat, ".")

	assert.Equal(t, map[string]interface{}{
		"flavor": "sklearn",
		"save_args": map[string]interface{}{
			"registered_model_name": "model",
			"signature":             "infer",
		},
	}, nested)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		sep  string
		m    map[string]interface{}
	}{
		{
			name: "dot separator",
			sep:  ".",
			m: map[string]interface{}{
				"a": map[string]interface{}{
					"b": map[string]interface{}{"c": 1, "d": "x"},
					"e": 2.5,
				},
				"f": "top",
			},
		},
		{
			name: "multi-char separator",
			sep:  "::",
			m: map[string]interface{}{
				"a": map[string]interface{}{"b": "v"},
				"c": true,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flat := Flatten(tc.m, true, tc.sep)
			require.Equal(t, tc.m, Unflatten(flat, tc.sep))
		})
	}
}

func TestFlatten_EmptyMap(t *testing.T) {
	assert.Empty(t, Flatten(map[string]interface{}{}, true, "."))
	assert.Empty(t, Unflatten(map[string]interface{}{}, "."))
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	input := map[string]interface{}{
		"a": map[string]interface{}{"b": 1},
	}

	_ = Flatten(input, true, ".")

	require.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"b": 1},
	}, input)
}
