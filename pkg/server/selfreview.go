package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/tools"
)

const foldedSummary = "<details><summary>Code suggestions (reviewed)</summary>"

// handleCommentEdit reacts to the author ticking the self-review checkbox on
// the suggestions comment.
func (s *Server) handleCommentEdit(ctx context.Context, url string, p eventPayload, log *slog.Logger) error {
	decision := selfReviewDecision(p.Comment.Body)
	if !decision.approve && !decision.fold {
		return nil
	}

	prov, err := s.opts.NewProvider(ctx, url)
	if err != nil {
		return err
	}
	meta, err := prov.GetMeta(ctx)
	if err != nil {
		return err
	}
	// Only the PR author's self-review counts.
	if !strings.EqualFold(p.Sender.Login, meta.Author) {
		log.Info("Ignoring self-review checkbox from non-author", "editor", p.Sender.Login)
		return nil
	}

	if decision.approve {
		log.Info("Self-review checked, approving PR", "pr_url", url)
		if err := prov.AutoApprove(ctx); err != nil {
			return err
		}
	}
	if decision.fold {
		if err := foldSuggestions(ctx, prov, p.Comment.ID, p.Comment.Body); err != nil {
			log.Warn("Failed to fold suggestions comment", "error", err)
		}
	}
	return nil
}

type reviewDecision struct {
	approve bool
	fold    bool
}

// selfReviewDecision reads the marker and the checkbox state out of an
// edited comment body.
func selfReviewDecision(body string) reviewDecision {
	if !checkboxTicked(body) {
		return reviewDecision{}
	}
	switch {
	case strings.Contains(body, tools.SelfReviewApproveFoldMarker):
		return reviewDecision{approve: true, fold: true}
	case strings.Contains(body, tools.SelfReviewApproveMarker):
		return reviewDecision{approve: true}
	case strings.Contains(body, tools.SelfReviewFoldMarker):
		return reviewDecision{fold: true}
	}
	return reviewDecision{}
}

// checkboxTicked inspects only the checkbox directly above the self-review
// marker; ticked task-list items elsewhere in the comment do not count.
func checkboxTicked(body string) bool {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if !isSelfReviewMarker(strings.TrimSpace(line)) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" {
				continue
			}
			return strings.HasPrefix(trimmed, "- [x]") || strings.HasPrefix(trimmed, "- [X]")
		}
	}
	return false
}

func isSelfReviewMarker(line string) bool {
	switch line {
	case tools.SelfReviewApproveFoldMarker, tools.SelfReviewApproveMarker, tools.SelfReviewFoldMarker:
		return true
	}
	return false
}

// foldSuggestions collapses the suggestions comment into a details block.
// Folding an already-folded comment is refused so repeated edits cannot nest
// the wrapper.
func foldSuggestions(ctx context.Context, prov provider.Provider, commentID int64, body string) error {
	if strings.Contains(body, foldedSummary) {
		return nil
	}
	folded := fmt.Sprintf("%s\n\n%s\n\n</details>", foldedSummary, body)
	return prov.EditComment(ctx, commentID, folded)
}
