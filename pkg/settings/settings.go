// Package settings resolves the layered configuration of prsentry.
//
// Six layers merge at the key level, each later layer overriding the earlier:
// embedded defaults, local secrets files, org-level overrides, repo-level
// overrides, command-line overrides, and environment variables. The result is
// an immutable snapshot shared by reference; a scoped snapshot can be overlaid
// for a single webhook dispatch without disturbing other in-flight work.
package settings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Settings is an immutable resolved configuration snapshot.
type Settings struct {
	tree     map[string]any
	sections *Sections
}

func newSettings(tree map[string]any) (*Settings, error) {
	sections, err := decodeSections(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to decode settings sections: %w", err)
	}
	return &Settings{tree: tree, sections: sections}, nil
}

// Sections returns the typed view of the snapshot.
func (s *Settings) Sections() *Sections { return s.sections }

// Get returns the raw value at a dotted key, or nil when absent.
func (s *Settings) Get(key string) any {
	node := any(s.tree)
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[strings.ToLower(part)]
		if !ok {
			return nil
		}
	}
	return node
}

// GetString returns the string value at a dotted key, or "" when absent.
func (s *Settings) GetString(key string) string { return cast.ToString(s.Get(key)) }

// GetInt returns the int value at a dotted key, or 0 when absent.
func (s *Settings) GetInt(key string) int { return cast.ToInt(s.Get(key)) }

// GetBool returns the bool value at a dotted key, or false when absent.
func (s *Settings) GetBool(key string) bool { return cast.ToBool(s.Get(key)) }

// GetFloat returns the float value at a dotted key, or 0 when absent.
func (s *Settings) GetFloat(key string) float64 { return cast.ToFloat64(s.Get(key)) }

// GetStringSlice returns the string-slice value at a dotted key.
func (s *Settings) GetStringSlice(key string) []string { return cast.ToStringSlice(s.Get(key)) }

// With returns a new snapshot with the given layer merged on top. The receiver
// is left untouched.
func (s *Settings) With(layer map[string]any) (*Settings, error) {
	merged := deepMerge(s.tree, layer)
	return newSettings(merged)
}

// deepMerge merges override onto base at the key level, returning a fresh tree.
// Nested maps merge recursively; any other value type replaces wholesale.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		ov, isMap := v.(map[string]any)
		bv, baseIsMap := out[k].(map[string]any)
		if isMap && baseIsMap {
			out[k] = deepMerge(bv, ov)
			continue
		}
		out[k] = v
	}
	return out
}

// setDotted writes value into tree at the lowercased dotted key, creating
// intermediate maps as needed.
func setDotted(tree map[string]any, key string, value any) {
	parts := strings.Split(strings.ToLower(key), ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

// secretKeyPatterns mark keys whose values are redacted in any dump of the
// settings tree. Matching is per key segment, case-insensitive.
var secretKeyPatterns = []string{"token", "key", "secret", "password"}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range secretKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the tree with secret values masked. Used by the
// config subcommand; redaction is uniform across all sections.
func (s *Settings) Redacted() map[string]any {
	return redactTree(s.tree)
}

func redactTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		if m, ok := v.(map[string]any); ok {
			out[k] = redactTree(m)
			continue
		}
		if isSecretKey(k) {
			if str := cast.ToString(v); str != "" {
				out[k] = "***"
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Keys returns all dotted leaf keys in the snapshot, sorted. Useful for
// debugging and for the config subcommand.
func (s *Settings) Keys() []string {
	var keys []string
	collectKeys("", s.tree, &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(prefix string, tree map[string]any, out *[]string) {
	for k, v := range tree {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			collectKeys(full, m, out)
			continue
		}
		*out = append(*out, full)
	}
}
