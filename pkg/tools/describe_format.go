package tools

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/prsentry/prsentry/pkg/settings"
)

// assembleDescribeBody builds the published body. The author's original
// description goes first, then the hidden marker, then the generated
// sections, so StripGeneratedContent can recover the original on the next
// run.
func assembleDescribeBody(r describeResult, original string, cfg *settings.Sections) string {
	var b strings.Builder

	if cfg.Describer.AddOriginalUserDescription && original != "" {
		b.WriteString(original)
		b.WriteString("\n\n")
	}
	b.WriteString(DescribeMarker)
	b.WriteString("\n\n")

	if cfg.Describer.EnablePRType && len(r.Types) > 0 {
		fmt.Fprintf(&b, "### **PR Type**\n%s\n\n", strings.Join(r.Types, ", "))
	}
	if r.Description != "" {
		fmt.Fprintf(&b, "### **Description**\n%s\n\n", r.Description)
	}
	if cfg.Describer.EnablePRDiagram && r.Diagram != "" {
		fmt.Fprintf(&b, "### **Diagram**\n```mermaid\n%s\n```\n\n", SanitizeMermaid(r.Diagram))
	}
	if cfg.Describer.EnableSemanticFilesTypes && len(r.Files) > 0 {
		b.WriteString("### **Changes walkthrough** 📝\n")
		b.WriteString(fileWalkthroughTable(r.Files, collapseFileList(cfg, len(r.Files))))
	}

	return strings.TrimSpace(b.String()) + "\n"
}

// collapseFileList applies the three-valued collapsible policy: true, false,
// or "adaptive" which collapses only above the configured threshold.
func collapseFileList(cfg *settings.Sections, fileCount int) bool {
	policy := cfg.Describer.CollapsibleFileList
	if policy.Is("adaptive") {
		return fileCount > cfg.Describer.CollapsibleFileListThreshold
	}
	return policy.True()
}

// fileWalkthroughTable renders the changed files as a nested HTML table
// grouped by semantic label.
func fileWalkthroughTable(files []fileEntry, collapsible bool) string {
	groups := map[string][]fileEntry{}
	var order []string
	for _, f := range files {
		if _, seen := groups[f.Label]; !seen {
			order = append(order, f.Label)
		}
		groups[f.Label] = append(groups[f.Label], f)
	}
	sort.Strings(order)

	var b strings.Builder
	b.WriteString("<table>\n")
	b.WriteString("<thead><tr><th></th><th align=\"left\">Relevant files</th></tr></thead>\n")
	b.WriteString("<tbody>\n")
	for _, label := range order {
		entries := groups[label]
		b.WriteString("<tr><td><strong>")
		b.WriteString(html.EscapeString(capitalize(label)))
		b.WriteString("</strong></td><td>")
		if collapsible {
			fmt.Fprintf(&b, "<details><summary>%d files</summary>", len(entries))
		}
		b.WriteString("<table>\n")
		for _, f := range entries {
			fmt.Fprintf(&b, "<tr><td><strong>%s</strong><dl><dd>%s</dd><dd><i>%s</i></dd></dl></td></tr>\n",
				html.EscapeString(f.Filename),
				html.EscapeString(f.Title),
				html.EscapeString(f.Summary))
		}
		b.WriteString("</table>")
		if collapsible {
			b.WriteString("</details>")
		}
		b.WriteString("</td></tr>\n")
	}
	b.WriteString("</tbody>\n</table>\n")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
