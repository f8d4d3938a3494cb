package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

type hunkHeader struct {
	start1, size1 int
	start2, size2 int
	section       string
}

func parseHunkHeader(line string) (hunkHeader, bool) {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return hunkHeader{}, false
	}
	atoi := func(s string, def int) int {
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return def
		}
		return n
	}
	return hunkHeader{
		start1:  atoi(m[1], 0),
		size1:   atoi(m[2], 1),
		start2:  atoi(m[3], 0),
		size2:   atoi(m[4], 1),
		section: m[5],
	}, true
}

func (h hunkHeader) String() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@%s", h.start1, h.size1, h.start2, h.size2, h.section)
}

// ExtendPatch expands each hunk with extraBefore context lines above and
// extraAfter below, drawn literally from the base file and clamped to its
// bounds. Sizes on both sides of the header are adjusted. An empty patch or an
// empty base file returns the patch unchanged.
func ExtendPatch(baseContent, patch string, extraBefore, extraAfter int) string {
	if patch == "" || baseContent == "" || (extraBefore <= 0 && extraAfter <= 0) {
		return patch
	}

	baseLines := strings.Split(baseContent, "\n")
	patchLines := strings.Split(patch, "\n")

	trailingNewline := false
	if len(patchLines) > 0 && patchLines[len(patchLines)-1] == "" {
		patchLines = patchLines[:len(patchLines)-1]
		trailingNewline = true
	}

	var out []string
	flushAfter := func(h hunkHeader) {
		// Append downward context for the hunk that just ended.
		afterStart := h.start1 + h.size1 - 1 // 0-based index of the line after the hunk
		for i := 0; i < extraAfter; i++ {
			idx := afterStart + i
			if idx >= len(baseLines) {
				break
			}
			out = append(out, " "+baseLines[idx])
		}
	}

	var current *hunkHeader
	for _, line := range patchLines {
		h, ok := parseHunkHeader(line)
		if !ok {
			if current != nil || !strings.HasPrefix(line, "@@") {
				out = append(out, line)
			}
			continue
		}

		if current != nil {
			flushAfter(*current)
		}

		before := extraBefore
		if h.start1-before < 1 {
			before = h.start1 - 1
		}
		after := extraAfter
		if remaining := len(baseLines) - (h.start1 + h.size1 - 1); after > remaining {
			after = remaining
			if after < 0 {
				after = 0
			}
		}

		extended := h
		extended.start1 -= before
		extended.start2 -= before
		extended.size1 += before + after
		extended.size2 += before + after
		out = append(out, extended.String())

		// Upward context comes right after the header.
		for i := 0; i < before; i++ {
			idx := h.start1 - before + i - 1
			if idx < 0 || idx >= len(baseLines) {
				continue
			}
			out = append(out, " "+baseLines[idx])
		}

		cur := h
		cur.size1 = h.size1
		current = &cur
	}
	if current != nil {
		flushAfter(*current)
	}
	if trailingNewline {
		out = append(out, "")
	}

	return strings.Join(out, "\n")
}
