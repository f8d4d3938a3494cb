// Package yamlex rescues structured data from model output that is supposed
// to be YAML but often is not quite. A direct parse is attempted first; on
// failure a fixed list of repair tactics runs in order, each producing a
// candidate text that is probe-parsed. The first tactic whose candidate
// parses to a non-empty mapping wins.
package yamlex

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options guide the repair tactics. KnownKeys lists the top-level and nested
// keys the caller expects, used to re-introduce block scalars. FirstKey and
// LastKey bound the region sliced out of surrounding prose.
type Options struct {
	KnownKeys []string
	FirstKey  string
	LastKey   string
}

var fenceRe = regexp.MustCompile("(?s)```(?:yaml)?\n?(.*?)```")

// Extract parses text as YAML, running the repair cascade when the direct
// parse fails. The second return value is false only when every tactic is
// exhausted.
func Extract(text string, opts Options) (map[string]any, bool) {
	snippet := stripFences(text)

	if m, ok := probe(snippet); ok {
		return m, true
	}

	tactics := []func(snippet, original string, opts Options) string{
		fixBlockScalars,
		fixScalarIndicators,
		extractFencedBlock,
		stripBraces,
		sliceKeyRange,
		stripDiffMarkers,
		expandTabs,
		reindentBlockScalars,
		stripLeadingPipes,
	}
	for _, tactic := range tactics {
		candidate := tactic(snippet, text, opts)
		if candidate == "" || candidate == snippet {
			continue
		}
		if m, ok := probe(candidate); ok {
			return m, true
		}
	}
	return nil, false
}

// probe attempts a parse and accepts only a non-empty mapping.
func probe(text string) (map[string]any, bool) {
	var v map[string]any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	if len(v) == 0 {
		return nil, false
	}
	return v, true
}

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```yaml")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// fixBlockScalars turns "key: some free text" into a block scalar for every
// known key, so unquoted prose with colons or quotes stops breaking the parse.
func fixBlockScalars(snippet, _ string, opts Options) string {
	lines := strings.Split(snippet, "\n")
	changed := false
	for i, line := range lines {
		for _, key := range opts.KnownKeys {
			indent, value, ok := splitKeyLine(line, key)
			if !ok || value == "" || strings.HasPrefix(value, "|") {
				continue
			}
			lines[i] = indent + key + ": |\n" + indent + "  " + value
			changed = true
			break
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(lines, "\n")
}

func splitKeyLine(line, key string) (indent, value string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, key+":") {
		return "", "", false
	}
	indent = line[:len(line)-len(trimmed)]
	value = strings.TrimSpace(strings.TrimPrefix(trimmed, key+":"))
	return indent, value, true
}

// fixScalarIndicators forces an explicit indentation indicator on block
// scalars and pushes stray closing braces under their key's indent.
func fixScalarIndicators(snippet, _ string, _ Options) string {
	out := strings.ReplaceAll(snippet, "|\n", "|2\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if strings.Contains(line, "}") && !strings.HasPrefix(line, " ") {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}

// extractFencedBlock pulls the first ```yaml block out of the snippet, then
// out of the original untouched input.
func extractFencedBlock(snippet, original string, _ Options) string {
	if m := fenceRe.FindStringSubmatch(snippet); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fenceRe.FindStringSubmatch(original); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func stripBraces(snippet, _ string, _ Options) string {
	t := strings.TrimSpace(snippet)
	if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
		return strings.TrimSpace(t[1 : len(t)-1])
	}
	return ""
}

// sliceKeyRange cuts the text between the first occurrence of FirstKey and
// the paragraph break following the last occurrence of LastKey, discarding
// prose the model wrapped around the YAML.
func sliceKeyRange(snippet, _ string, opts Options) string {
	if opts.FirstKey == "" || opts.LastKey == "" {
		return ""
	}
	start := strings.Index(snippet, opts.FirstKey+":")
	if start < 0 {
		return ""
	}
	last := strings.LastIndex(snippet, opts.LastKey+":")
	if last < start {
		return ""
	}
	end := strings.Index(snippet[last:], "\n\n")
	if end < 0 {
		return snippet[start:]
	}
	return snippet[start : last+end]
}

var diffMarkerRe = regexp.MustCompile(`(?m)^\+`)

func stripDiffMarkers(snippet, _ string, _ Options) string {
	return diffMarkerRe.ReplaceAllString(snippet, " ")
}

func expandTabs(snippet, _ string, _ Options) string {
	return strings.ReplaceAll(snippet, "\t", "    ")
}

var blockScalarKeyRe = regexp.MustCompile(`^(\s*)([\w.\-\[\]]+):\s*\|-?\s*$`)
var plainKeyRe = regexp.MustCompile(`^\s*[\w.\-\[\]]+:`)
var listItemRe = regexp.MustCompile(`^\s*- `)

// reindentBlockScalars re-indents the body of each "key: |" block to the
// key's indent plus two, fixing bodies the model emitted flush left.
func reindentBlockScalars(snippet, _ string, _ Options) string {
	lines := strings.Split(snippet, "\n")
	inBlock := false
	bodyIndent := ""
	changed := false

	for i, line := range lines {
		if m := blockScalarKeyRe.FindStringSubmatch(line); m != nil {
			inBlock = true
			bodyIndent = m[1] + "  "
			continue
		}
		if !inBlock {
			continue
		}
		if plainKeyRe.MatchString(line) || listItemRe.MatchString(line) || strings.TrimSpace(line) == "" {
			inBlock = false
			continue
		}
		if !strings.HasPrefix(line, bodyIndent) {
			lines[i] = bodyIndent + strings.TrimLeft(line, " ")
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(lines, "\n")
}

func stripLeadingPipes(snippet, _ string, _ Options) string {
	return strings.TrimLeft(snippet, "|\n ")
}
