// Package keypath flattens and unflattens nested configuration maps using
// separator-joined key paths. It is the substitution mechanism behind dynamic
// dataset parameters: templates are flattened, individual leaves patched, and
// the result unflattened back into constructor arguments.
package keypath

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSeparator is the separator used for dataset configuration paths.
const DefaultSeparator = "."

// Flatten converts a nested map into a single-level map whose keys are
// separator-joined paths through the input. When recursive is false only one
// level of nesting is flattened and deeper maps are kept as values.
//
// Keys of nested maps may be non-strings (as produced by YAML or JSON
// decoding): integer keys are stringified, float keys keep their decimal
// form. Separator collisions between an original key and a joined path are
// not detected; the last write wins.
func Flatten(m map[string]interface{}, recursive bool, sep string) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	flattenInto(result, m, "", recursive, true, sep)
	return result
}

func flattenInto(result map[string]interface{}, m map[string]interface{}, prefix string, recursive, topLevel bool, sep string) {
	for key, value := range m {
		path := joinKey(prefix, key, sep)

		switch v := value.(type) {
		case map[string]interface{}:
			if recursive || topLevel {
				flattenInto(result, v, path, recursive, false, sep)
			} else {
				result[path] = v
			}
		case map[interface{}]interface{}:
			if recursive || topLevel {
				flattenInto(result, normalizeKeys(v), path, recursive, false, sep)
			} else {
				result[path] = normalizeKeys(v)
			}
		default:
			result[path] = value
		}
	}
}

// Unflatten is the inverse of Flatten: it splits every key on the separator
// and rebuilds the nested structure. For any collision-free map m,
// Unflatten(Flatten(m, true, sep), sep) reproduces m.
func Unflatten(m map[string]interface{}, sep string) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range m {
		parts := splitKey(key, sep)
		current := result

		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = value
				continue
			}
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}
	}

	return result
}

func joinKey(prefix, key, sep string) string {
	if prefix == "" {
		return key
	}
	return prefix + sep + key
}

func splitKey(key, sep string) []string {
	if sep == "" {
		return []string{key}
	}
	return strings.Split(key, sep)
}

// normalizeKeys converts a map with interface{} keys (as produced by some
// decoders) into a string-keyed map. Integer keys are stringified; float keys
// keep their decimal representation so downstream numeric-tag consumers can
// still distinguish them.
func normalizeKeys(m map[interface{}]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		result[keyString(key)] = value
	}
	return result
}

func keyString(key interface{}) string {
	switch k := key.(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(k), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(k)
	default:
		return fmt.Sprintf("%v", k)
	}
}
