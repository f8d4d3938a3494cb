package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/prompts"
	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/yamlex"
)

// Review runs the reviewer pipeline and publishes the persistent "PR
// Reviewer Guide" comment.
type Review struct {
	Deps
}

type reviewResult struct {
	Effort           int
	Score            string
	RelevantTests    string
	SecurityConcerns string
	KeyIssues        []keyIssue
}

type keyIssue struct {
	File    string
	Header  string
	Content string
	Start   int
	End     int
}

// Run executes the review pipeline.
func (t Review) Run(ctx context.Context) error {
	cfg := conf(ctx)
	publish := cfg.Config.PublishOutput

	meta, err := t.Provider.GetMeta(ctx)
	if err != nil {
		return err
	}
	files, err := t.Provider.GetDiffFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		slog.Info("No files in PR, skipping review", "pr", t.Provider.Number())
		return nil
	}

	remove := tempComment(ctx, t.Provider, publish, "Preparing review...")
	defer remove()

	compressed := diff.Compress(files, compressOpts(cfg, true))
	commitMessages, err := t.Provider.GetCommitMessages(ctx)
	if err != nil {
		slog.Warn("Failed to fetch commit messages", "error", err)
	}

	vars := baseVars(meta, compressed.Patch, commitMessages)
	vars["ExtraInstructions"] = cfg.Reviewer.ExtraInstructions
	vars["NumMaxFindings"] = cfg.Reviewer.NumMaxFindings
	vars["RequireScore"] = cfg.Reviewer.RequireScoreReview
	vars["RequireTicketCompliance"] = false

	prompt, err := prompts.Render("review", vars)
	if err != nil {
		return err
	}
	raw, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return err
	}

	parsed, ok := yamlex.Extract(raw, yamlex.Options{
		KnownKeys: []string{
			"estimated_effort_to_review_[1-5]", "score", "relevant_tests",
			"security_concerns", "relevant_file", "issue_header", "issue_content",
		},
		FirstKey: "review",
		LastKey:  "security_concerns",
	})

	var body string
	if !ok {
		// Degrade to a raw dump instead of failing the tool.
		slog.Warn("Could not parse review output as YAML, publishing raw dump")
		body = fmt.Sprintf("## PR Reviewer Guide 🔍\n\n**Could not parse the model output.** Raw response:\n\n```\n%s\n```\n", raw)
	} else {
		result := parseReview(parsed)
		body = formatReview(result, t.Provider)
		if publish {
			t.publishReviewLabels(ctx, cfg.Reviewer.EnableReviewLabelsEffort,
				cfg.Reviewer.EnableReviewLabelsSecurity, result)
		}
	}

	return publishOrPrint(t.Deps, publish, body, func() error {
		if cfg.Reviewer.PersistentComment {
			_, err := provider.UpsertPersistentComment(ctx, t.Provider, provider.PersistentCommentOptions{
				Marker:       ReviewMarker,
				Body:         body,
				UpdateHeader: fmt.Sprintf("*Review updated until commit %.7s*", meta.HeadSHA),
				Notify:       cfg.Reviewer.FinalUpdateMessage,
				Name:         "PR Reviewer Guide",
			})
			return err
		}
		_, err := t.Provider.PublishComment(ctx, body+"\n"+ReviewMarker+"\n", false)
		return err
	})
}

func parseReview(m map[string]any) reviewResult {
	review, _ := m["review"].(map[string]any)
	if review == nil {
		review = m
	}

	var r reviewResult
	r.Effort, _ = yamlex.ToInt(review["estimated_effort_to_review_[1-5]"])
	r.Score = yamlex.ToString(review["score"])
	r.RelevantTests = yamlex.ToString(review["relevant_tests"])
	r.SecurityConcerns = yamlex.ToString(review["security_concerns"])

	issues, _ := review["key_issues_to_review"].([]any)
	for _, raw := range issues {
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		issue := keyIssue{
			File:    yamlex.ToString(entry["relevant_file"]),
			Header:  yamlex.ToString(entry["issue_header"]),
			Content: yamlex.ToString(entry["issue_content"]),
		}
		issue.Start, _ = yamlex.ToInt(entry["start_line"])
		issue.End, _ = yamlex.ToInt(entry["end_line"])
		if issue.File == "" && issue.Content == "" {
			continue
		}
		r.KeyIssues = append(r.KeyIssues, issue)
	}
	return r
}

func (t Review) publishReviewLabels(ctx context.Context, effortEnabled, securityEnabled bool, r reviewResult) {
	var labels []string
	if effortEnabled && r.Effort >= 1 && r.Effort <= 5 {
		labels = append(labels, fmt.Sprintf("Review effort [1-5]: %d", r.Effort))
	}
	if securityEnabled && securityFlagged(r.SecurityConcerns) {
		labels = append(labels, "Possible security concern")
	}
	if len(labels) == 0 {
		return
	}

	current, err := t.Provider.GetLabels(ctx)
	if err != nil {
		slog.Warn("Failed to list labels", "error", err)
		current = nil
	}
	// Keep labels we did not generate.
	merged := make([]string, 0, len(current)+len(labels))
	for _, l := range current {
		if !isGeneratedLabel(l) {
			merged = append(merged, l)
		}
	}
	merged = append(merged, labels...)

	if err := t.Provider.PublishLabels(ctx, merged); err != nil {
		slog.Warn("Failed to publish labels", "error", err)
	}
}
