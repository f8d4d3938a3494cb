package diff

import (
	"fmt"
	"strings"
)

// FormatFile renders a file's patch for prompt inclusion. With lineNumbers
// set, each hunk is split into a __new hunk__ section (post-image lines
// prefixed with their new-file line numbers) and an __old hunk__ section
// (pre-image lines, unnumbered). Context lines appear in both. Without line
// numbers the raw patch follows the file header.
func FormatFile(f FilePatchInfo, lineNumbers bool) string {
	if f.EditType == EditDeleted {
		return fmt.Sprintf("## File '%s' was deleted\n", f.Path)
	}
	if !lineNumbers {
		return fmt.Sprintf("## File: '%s'\n%s\n", f.Path, strings.TrimRight(f.Patch, "\n"))
	}
	return fmt.Sprintf("## File: '%s'\n%s", f.Path, numberHunks(f.Patch))
}

func numberHunks(patch string) string {
	var out strings.Builder

	var newSection, oldSection []string
	newLine := 0

	flush := func() {
		if len(newSection) == 0 && len(oldSection) == 0 {
			return
		}
		out.WriteString("\n__new hunk__\n")
		for _, l := range newSection {
			out.WriteString(l)
			out.WriteString("\n")
		}
		out.WriteString("__old hunk__\n")
		for _, l := range oldSection {
			out.WriteString(l)
			out.WriteString("\n")
		}
		newSection = newSection[:0]
		oldSection = oldSection[:0]
	}

	inHunk := false
	for _, line := range strings.Split(patch, "\n") {
		if h, ok := parseHunkHeader(line); ok {
			flush()
			newLine = h.start2
			inHunk = true
			continue
		}
		if !inHunk || line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			newSection = append(newSection, fmt.Sprintf("%d %s", newLine, line))
			newLine++
		case strings.HasPrefix(line, "-"):
			oldSection = append(oldSection, line)
		case strings.HasPrefix(line, " "):
			newSection = append(newSection, fmt.Sprintf("%d %s", newLine, line))
			oldSection = append(oldSection, line)
			newLine++
		default:
			// \ No newline markers are dropped from the numbered rendering.
		}
	}
	flush()

	return out.String()
}
