package tools

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/settings"
)

// formatSuggestionsTable renders the suggestions summary comment. Line-bound
// suggestions go into an HTML table grouped by label; suggestions without
// line anchors are listed as architecture notes below it.
func formatSuggestionsTable(ss []suggestion, p provider.Provider) string {
	var b strings.Builder
	b.WriteString("## PR Code Suggestions ✨\n\n")

	if len(ss) == 0 {
		b.WriteString("No code suggestions found for the PR.\n")
		return b.String()
	}

	var anchored, unanchored []suggestion
	for _, s := range ss {
		if s.Start > 0 {
			anchored = append(anchored, s)
		} else {
			unanchored = append(unanchored, s)
		}
	}

	if len(anchored) > 0 {
		b.WriteString(anchoredTable(anchored, p))
	}
	if len(unanchored) > 0 {
		b.WriteString("\n### Architecture & Design\n\n")
		for _, s := range unanchored {
			line := s.Summary
			if line == "" {
				line = s.Content
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}

func anchoredTable(ss []suggestion, p provider.Provider) string {
	groups := map[string][]suggestion{}
	for _, s := range ss {
		label := s.Label
		if label == "" {
			label = "general"
		}
		groups[label] = append(groups[label], s)
	}
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString("<table>\n")
	b.WriteString("<thead><tr><td><strong>Category</strong></td><td align=\"left\"><strong>Suggestion</strong></td><td align=\"center\"><strong>Impact</strong></td></tr></thead>\n")
	b.WriteString("<tbody>\n")
	for _, label := range labels {
		entries := groups[label]
		for i, s := range entries {
			b.WriteString("<tr>")
			if i == 0 {
				fmt.Fprintf(&b, "<td rowspan=\"%d\"><strong>%s</strong></td>", len(entries), html.EscapeString(capitalize(label)))
			}
			b.WriteString("<td>\n\n")
			b.WriteString(suggestionCell(s, p))
			b.WriteString("\n</td>")
			fmt.Fprintf(&b, "<td align=\"center\">%s</td>", impactWord(s.Score))
			b.WriteString("</tr>\n")
		}
	}
	b.WriteString("</tbody>\n</table>\n")
	return b.String()
}

// suggestionCell renders one suggestion with its line link and a collapsible
// before/after code block.
func suggestionCell(s suggestion, p provider.Provider) string {
	var b strings.Builder

	link := p.GetLineLink(s.File, s.Start, s.End)
	fmt.Fprintf(&b, "<details><summary>%s</summary>\n\n", html.EscapeString(firstSentence(s)))
	fmt.Fprintf(&b, "**[%s [%d-%d]](%s)**\n\n", s.File, s.Start, s.End, link)
	if s.Content != "" {
		b.WriteString(s.Content)
		b.WriteString("\n\n")
	}
	if s.Existing != "" && s.Improved != "" {
		lang := s.Language
		fmt.Fprintf(&b, "```%s\n%s\n```\n", lang, strings.TrimRight(s.Existing, "\n"))
		fmt.Fprintf(&b, "```%s\n%s\n```\n", lang, strings.TrimRight(s.Improved, "\n"))
	}
	if s.Why != "" {
		fmt.Fprintf(&b, "\n<details><summary>Why</summary>%s</details>\n", html.EscapeString(s.Why))
	}
	b.WriteString("\n</details>")
	return b.String()
}

func firstSentence(s suggestion) string {
	if s.Summary != "" {
		return s.Summary
	}
	if i := strings.IndexAny(s.Content, ".\n"); i > 0 {
		return s.Content[:i]
	}
	return s.Content
}

func impactWord(score int) string {
	switch {
	case score >= 9:
		return "High"
	case score >= 6:
		return "Medium"
	case score > 0:
		return "Low"
	default:
		return ""
	}
}

// selfReviewBlock appends the self-review checkbox plus the marker matching
// the configured actions, so the webhook edit handler can tell which actions
// the checkbox should trigger.
func selfReviewBlock(cfg *settings.Sections) string {
	if !cfg.Improve.DemandCodeSuggestionsSelfReview {
		return ""
	}
	text := cfg.Improve.CodeSuggestionsSelfReviewText
	if text == "" {
		text = "**I reviewed the suggestions**"
	}

	var marker string
	switch {
	case cfg.Improve.ApprovePROnSelfReview && cfg.Improve.FoldSuggestionsOnSelfReview:
		marker = SelfReviewApproveFoldMarker
	case cfg.Improve.ApprovePROnSelfReview:
		marker = SelfReviewApproveMarker
	case cfg.Improve.FoldSuggestionsOnSelfReview:
		marker = SelfReviewFoldMarker
	}

	block := "\n- [ ] " + text + "\n"
	if marker != "" {
		block += marker + "\n"
	}
	return block
}

// toCodeSuggestions converts line-anchored suggestions into committable
// ```suggestion blocks.
func toCodeSuggestions(ss []suggestion) []provider.CodeSuggestion {
	var out []provider.CodeSuggestion
	for _, s := range ss {
		if s.Start <= 0 || s.End < s.Start || s.Improved == "" {
			continue
		}
		body := fmt.Sprintf("**%s**\n\n```suggestion\n%s\n```",
			firstSentence(s), strings.TrimRight(s.Improved, "\n"))
		out = append(out, provider.CodeSuggestion{
			Path:      s.File,
			Body:      body,
			StartLine: s.Start,
			EndLine:   s.End,
		})
	}
	return out
}
