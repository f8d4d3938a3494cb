package settings

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/prsentry/prsentry/pkg/errs"
)

//go:embed defaults/settings.toml
var defaultSettingsTOML []byte

// forbiddenOverrideKeys is the closed list of security-critical keys that may
// never be set through command-level overrides. A candidate matches when its
// full dotted name equals an entry or when any dot-separated segment equals
// one.
var forbiddenOverrideKeys = []string{
	"user_token",
	"private_key",
	"webhook_secret",
	"base_url",
	"api_base",
	"app_id",
	"openai.key",
	"secret_provider",
	"secret_store_url",
}

// CheckForbiddenOverride rejects command-level overrides of security-critical
// keys. The returned error names the matched forbidden key.
func CheckForbiddenOverride(key string) error {
	lower := strings.ToLower(key)
	for _, forbidden := range forbiddenOverrideKeys {
		if lower == forbidden {
			return errs.Newf(errs.KindConfig, "forbidden override of %q", key)
		}
		for _, segment := range strings.Split(lower, ".") {
			if segment == forbidden {
				return errs.Newf(errs.KindConfig, "forbidden override of %q (segment %q)", key, forbidden)
			}
		}
	}
	return nil
}

// ResolveOptions configure a Resolve call.
type ResolveOptions struct {
	// SecretsFiles are optional local TOML files merged over the defaults.
	// Missing files are skipped silently.
	SecretsFiles []string

	// CLIOverrides are raw --section.key=value tokens (double underscore is
	// equivalent to dot).
	CLIOverrides []string

	// Environ overrides os.Environ() in tests. Each entry is "NAME=value".
	Environ []string
}

// Resolve builds a settings snapshot from the static layers: embedded
// defaults, secrets files, CLI overrides, and environment variables.
// Org- and repo-level layers arrive later through Settings.With, once the
// active provider can fetch them.
func Resolve(opts ResolveOptions) (*Settings, error) {
	tree := make(map[string]any)

	var defaults map[string]any
	if err := toml.Unmarshal(defaultSettingsTOML, &defaults); err != nil {
		return nil, errs.Wrap(errs.KindTOML, "embedded defaults are malformed", err)
	}
	tree = deepMerge(tree, normalizeTree(defaults))

	secretsFiles := opts.SecretsFiles
	if secretsFiles == nil {
		secretsFiles = []string{".secrets.toml"}
	}
	for _, path := range secretsFiles {
		layer, err := loadTOMLFile(path)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			tree = deepMerge(tree, layer)
		}
	}

	cliLayer, err := ParseCLIOverrides(opts.CLIOverrides)
	if err != nil {
		return nil, err
	}
	tree = deepMerge(tree, cliLayer)

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	tree = deepMerge(tree, envLayer(environ))

	return newSettings(tree)
}

// ParseTOMLLayer parses raw TOML bytes (an org or repo level .pr_agent.toml)
// into a mergeable layer.
func ParseTOMLLayer(data []byte) (map[string]any, error) {
	var layer map[string]any
	if err := toml.Unmarshal(data, &layer); err != nil {
		return nil, errs.Wrap(errs.KindTOML, "malformed settings file", err)
	}
	return normalizeTree(layer), nil
}

func loadTOMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindIO, fmt.Sprintf("failed to read %s", path), err)
	}
	return ParseTOMLLayer(data)
}

// ParseCLIOverrides turns --section.key=value tokens into a settings layer.
// Accepted forms: "--a.b=v", "a.b=v", "--a__b=v". Forbidden keys are rejected
// with a user-visible error; no layer is produced in that case.
func ParseCLIOverrides(tokens []string) (map[string]any, error) {
	layer := make(map[string]any)
	for i := 0; i < len(tokens); i++ {
		token := strings.TrimPrefix(tokens[i], "--")
		var key, raw string
		if eq := strings.Index(token, "="); eq >= 0 {
			key, raw = token[:eq], token[eq+1:]
		} else if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "--") {
			key, raw = token, tokens[i+1]
			i++
		} else {
			return nil, errs.Newf(errs.KindConfig, "override %q has no value", tokens[i])
		}

		key = strings.ReplaceAll(key, "__", ".")
		if !strings.Contains(key, ".") {
			return nil, errs.Newf(errs.KindConfig, "override %q is not of the form section.key", key)
		}
		if err := CheckForbiddenOverride(key); err != nil {
			return nil, err
		}
		setDotted(layer, key, parseTOMLValue(raw))
	}
	return layer, nil
}

// parseTOMLValue interprets a raw override value as a TOML literal, falling
// back to the plain string. Shell-mangled array quoting such as [\'a\'] or
// [\"a\"] is normalized first; container runtimes deliver both variants.
func parseTOMLValue(raw string) any {
	normalized := strings.ReplaceAll(raw, `\'`, `'`)
	normalized = strings.ReplaceAll(normalized, `\"`, `"`)

	var doc map[string]any
	if err := toml.Unmarshal([]byte("v = "+normalized), &doc); err == nil {
		if v, ok := doc["v"]; ok {
			return normalizeValue(v)
		}
	}
	return raw
}

// normalizeTree lowercases keys and converts nested map types so that every
// layer merges uniformly.
func normalizeTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		out[strings.ToLower(k)] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeTree(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[strings.ToLower(fmt.Sprint(k))] = normalizeValue(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
