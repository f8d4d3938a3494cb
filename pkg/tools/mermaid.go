package tools

import (
	"regexp"
	"strings"
)

var (
	mermaidEdgeLabelRe = regexp.MustCompile(`\|([^|"\n]+)\|`)
	mermaidNodeTextRe  = regexp.MustCompile(`(\w+)\[([^\[\]"\n]+)\]`)
)

// SanitizeMermaid quotes edge labels and node texts that contain characters
// the mermaid shape parser would otherwise misread as syntax. Already-quoted
// texts pass through untouched.
func SanitizeMermaid(diagram string) string {
	out := mermaidEdgeLabelRe.ReplaceAllStringFunc(diagram, func(m string) string {
		inner := m[1 : len(m)-1]
		if !needsMermaidQuoting(inner) {
			return m
		}
		return `|"` + inner + `"|`
	})
	out = mermaidNodeTextRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := mermaidNodeTextRe.FindStringSubmatch(m)
		if !needsMermaidQuoting(sub[2]) {
			return m
		}
		return sub[1] + `["` + sub[2] + `"]`
	})
	return out
}

func needsMermaidQuoting(text string) bool {
	return strings.ContainsAny(text, "(){}")
}
