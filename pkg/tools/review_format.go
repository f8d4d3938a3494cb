package tools

import (
	"fmt"
	"strings"

	"github.com/prsentry/prsentry/pkg/provider"
)

// effortCircles renders the 1-5 effort score as filled and empty circles.
func effortCircles(effort int) string {
	if effort < 0 {
		effort = 0
	}
	if effort > 5 {
		effort = 5
	}
	return strings.Repeat("🔵", effort) + strings.Repeat("⚪", 5-effort)
}

// securityFlagged reports whether the model raised an actual concern rather
// than answering "no".
func securityFlagged(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "", "no", "none", "no security concerns", "no security concerns identified":
		return false
	}
	return true
}

func formatReview(r reviewResult, p provider.Provider) string {
	var b strings.Builder

	b.WriteString("## PR Reviewer Guide 🔍\n\n")
	b.WriteString("Here are some key observations to aid the review process:\n\n")

	if r.Effort > 0 {
		fmt.Fprintf(&b, "### ⏱️ Estimated effort to review: %d %s\n\n", r.Effort, effortCircles(r.Effort))
	}
	if r.Score != "" {
		fmt.Fprintf(&b, "### 🏅 Score: %s\n\n", r.Score)
	}
	if r.RelevantTests != "" {
		fmt.Fprintf(&b, "### 🧪 Relevant tests: %s\n\n", r.RelevantTests)
	}

	if securityFlagged(r.SecurityConcerns) {
		fmt.Fprintf(&b, "### 🔒 Security concerns\n\n%s\n\n", r.SecurityConcerns)
	} else {
		b.WriteString("### 🔒 No security concerns identified\n\n")
	}

	if len(r.KeyIssues) > 0 {
		b.WriteString("### 🔍 Key issues to review\n\n")
		for _, issue := range r.KeyIssues {
			location := issue.File
			if issue.Start > 0 {
				link := p.GetLineLink(issue.File, issue.Start, issue.End)
				location = fmt.Sprintf("[%s](%s)", issue.File, link)
			}
			header := issue.Header
			if header == "" {
				header = "Issue"
			}
			fmt.Fprintf(&b, "- %s — **%s:** %s\n", location, header, issue.Content)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// isGeneratedLabel identifies labels this tool manages so republishing
// replaces them instead of stacking duplicates.
func isGeneratedLabel(label string) bool {
	return strings.HasPrefix(label, "Review effort [1-5]:") ||
		label == "Possible security concern"
}
