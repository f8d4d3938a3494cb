package tools

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/prompts"
	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/settings"
	"github.com/prsentry/prsentry/pkg/yamlex"
)

// Improve runs the two-pass code-suggestions pipeline: a suggestion pass per
// diff batch, then a reflect pass that re-scores each suggestion against the
// line-numbered diff.
type Improve struct {
	Deps
}

type suggestion struct {
	File     string
	Language string
	Content  string
	Existing string
	Improved string
	Summary  string
	Label    string
	Start    int
	End      int
	Score    int
	Why      string
}

// Run executes the improve pipeline.
func (t Improve) Run(ctx context.Context) error {
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
		slog.Info("No files in PR, skipping suggestions", "pr", t.Provider.Number())
		return nil
	}

	remove := tempComment(ctx, t.Provider, publish, "Preparing code suggestions...")
	defer remove()

	// The suggestion prompt wants the plain diff, the reflect prompt the
	// line-numbered one. Both renderings are built from the same batches.
	plain := plainPatches(files, cfg)

	opts := compressOpts(cfg, true)
	if cfg.Improve.MaxContextTokens > 0 {
		opts.CustomMax = cfg.Improve.MaxContextTokens
	}
	maxCalls := cfg.Improve.MaxNumberOfCalls
	if maxCalls < 1 {
		maxCalls = 1
	}
	batches, leftover := diff.CompressMulti(files, opts, maxCalls)
	if len(leftover) > 0 {
		slog.Warn("Diff too large, some files skipped", "skipped", len(leftover))
	}

	commitMessages, err := t.Provider.GetCommitMessages(ctx)
	if err != nil {
		slog.Warn("Failed to fetch commit messages", "error", err)
	}

	// Batches are isolated: one failing drops only its own suggestions. Only
	// cancellation propagates through the group.
	perBatch := make([][]suggestion, len(batches))
	var g errgroup.Group
	if !cfg.Improve.ParallelCalls {
		g.SetLimit(1)
	}
	for i, batch := range batches {
		g.Go(func() error {
			ss, err := t.runBatch(ctx, cfg, meta, batch, plain, commitMessages)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Suggestion batch failed, dropping its results", "batch", i, "error", err)
				return nil
			}
			perBatch[i] = ss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []suggestion
	for _, ss := range perBatch {
		all = append(all, ss...)
	}
	all = filterAndSort(all, cfg.Improve.SuggestionsScoreThreshold)

	return t.publishSuggestions(ctx, cfg, publish, all)
}

// runBatch runs the suggestion pass and the reflect pass on one batch.
func (t Improve) runBatch(ctx context.Context, cfg *settings.Sections, meta provider.PRMeta,
	batch diff.Result, plain map[string]string, commitMessages string) ([]suggestion, error) {

	var plainDiff strings.Builder
	for _, f := range batch.Files {
		plainDiff.WriteString(plain[f.Path])
		plainDiff.WriteString("\n")
	}

	vars := map[string]any{
		"Title":             meta.Title,
		"CommitMessages":    commitMessages,
		"Diff":              plainDiff.String(),
		"ExtraInstructions": cfg.Improve.ExtraInstructions,
		"MaxSuggestions":    cfg.Improve.NumCodeSuggestionsPerChunk,
	}
	prompt, err := prompts.Render("improve", vars)
	if err != nil {
		return nil, err
	}
	raw, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return nil, err
	}

	parsed, ok := yamlex.Extract(raw, yamlex.Options{
		KnownKeys: []string{
			"suggestion_content", "existing_code", "improved_code",
			"one_sentence_summary", "relevant_file", "label", "language",
		},
		FirstKey: "code_suggestions",
		LastKey:  "label",
	})
	if !ok {
		slog.Warn("Could not parse suggestions output, dropping batch")
		return nil, nil
	}
	suggestions := parseSuggestions(parsed)
	if len(suggestions) == 0 {
		return nil, nil
	}

	reflected, err := t.reflect(ctx, cfg, meta, batch.Patch, suggestions)
	if err != nil {
		slog.Warn("Reflect pass failed, keeping unscored suggestions", "error", err)
		return suggestions, nil
	}
	return reflected, nil
}

type reflectEntry struct {
	Summary string `yaml:"suggestion_summary"`
	File    string `yaml:"relevant_file"`
	Start   int    `yaml:"relevant_lines_start"`
	End     int    `yaml:"relevant_lines_end"`
	Content string `yaml:"suggestion_content"`
}

// reflect re-scores each suggestion against the numbered diff and merges
// the feedback: scores always overwrite; line numbers overwrite only when
// the original lacks valid ones.
func (t Improve) reflect(ctx context.Context, cfg *settings.Sections, meta provider.PRMeta,
	numberedDiff string, suggestions []suggestion) ([]suggestion, error) {

	entries := make([]reflectEntry, len(suggestions))
	for i, s := range suggestions {
		entries[i] = reflectEntry{
			Summary: s.Summary, File: s.File,
			Start: s.Start, End: s.End, Content: s.Content,
		}
	}
	dump, err := yaml.Marshal(entries)
	if err != nil {
		return nil, err
	}

	prompt, err := prompts.Render("improve_reflect", map[string]any{
		"Title":       meta.Title,
		"Diff":        numberedDiff,
		"Suggestions": string(dump),
	})
	if err != nil {
		return nil, err
	}
	raw, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return nil, err
	}

	parsed, ok := yamlex.Extract(raw, yamlex.Options{
		KnownKeys: []string{"suggestion_summary", "relevant_file", "why"},
		FirstKey:  "code_suggestions",
		LastKey:   "why",
	})
	if !ok {
		return suggestions, nil
	}

	feedback, _ := parsed["code_suggestions"].([]any)
	for i, raw := range feedback {
		if i >= len(suggestions) {
			break
		}
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		s := &suggestions[i]
		if score, ok := yamlex.ToInt(entry["suggestion_score"]); ok {
			s.Score = score
		}
		s.Why = yamlex.ToString(entry["why"])
		start, okStart := yamlex.ToInt(entry["relevant_lines_start"])
		end, okEnd := yamlex.ToInt(entry["relevant_lines_end"])
		if s.Start <= 0 && okStart {
			s.Start = start
		}
		if s.End <= 0 && okEnd {
			s.End = end
		}
	}

	for i := range suggestions {
		s := &suggestions[i]
		if s.Start < 0 || s.End < 0 {
			s.Score = 0
		}
	}
	return suggestions, nil
}

func parseSuggestions(m map[string]any) []suggestion {
	entries, _ := m["code_suggestions"].([]any)
	var out []suggestion
	for _, raw := range entries {
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		s := suggestion{
			File:     yamlex.ToString(entry["relevant_file"]),
			Language: yamlex.ToString(entry["language"]),
			Content:  yamlex.ToString(entry["suggestion_content"]),
			Existing: yamlex.ToString(entry["existing_code"]),
			Improved: yamlex.ToString(entry["improved_code"]),
			Summary:  yamlex.ToString(entry["one_sentence_summary"]),
			Label:    yamlex.ToString(entry["label"]),
		}
		s.Start, _ = yamlex.ToInt(entry["relevant_lines_start"])
		s.End, _ = yamlex.ToInt(entry["relevant_lines_end"])
		if s.Content == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func filterAndSort(ss []suggestion, threshold int) []suggestion {
	out := make([]suggestion, 0, len(ss))
	for _, s := range ss {
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// publishSuggestions applies the configured publish mode: dual, inline-only
// with table fallback, or table-only.
func (t Improve) publishSuggestions(ctx context.Context, cfg *settings.Sections, publish bool, ss []suggestion) error {
	table := formatSuggestionsTable(ss, t.Provider) + selfReviewBlock(cfg)

	if !publish {
		return publishOrPrint(t.Deps, false, table, nil)
	}

	switch {
	case cfg.Improve.CommitableCodeSuggestions && cfg.Improve.DualPublishingScoreThreshold > 0:
		t.publishInline(ctx, highScoring(ss, cfg.Improve.DualPublishingScoreThreshold))
		return t.publishTable(ctx, cfg, table)
	case cfg.Improve.CommitableCodeSuggestions:
		if err := t.Provider.PublishCodeSuggestions(ctx, toCodeSuggestions(ss)); err != nil {
			slog.Warn("Inline suggestions failed, falling back to summary table", "error", err)
			return t.publishTable(ctx, cfg, table)
		}
		return nil
	default:
		return t.publishTable(ctx, cfg, table)
	}
}

func (t Improve) publishInline(ctx context.Context, ss []suggestion) {
	if len(ss) == 0 {
		return
	}
	if err := t.Provider.PublishCodeSuggestions(ctx, toCodeSuggestions(ss)); err != nil {
		slog.Warn("Inline suggestions failed", "error", err)
	}
}

func (t Improve) publishTable(ctx context.Context, cfg *settings.Sections, body string) error {
	if cfg.Improve.PersistentComment {
		_, err := provider.UpsertPersistentComment(ctx, t.Provider, provider.PersistentCommentOptions{
			Marker: ImproveMarker,
			Body:   body,
			Name:   "PR Code Suggestions",
		})
		return err
	}
	_, err := t.Provider.PublishComment(ctx, body+"\n"+ImproveMarker+"\n", false)
	return err
}

func highScoring(ss []suggestion, threshold int) []suggestion {
	out := make([]suggestion, 0, len(ss))
	for _, s := range ss {
		if s.Score >= threshold && s.Start > 0 && s.End >= s.Start {
			out = append(out, s)
		}
	}
	return out
}

// plainPatches renders every surviving file's extended patch without line
// numbers, keyed by path.
func plainPatches(files []diff.FilePatchInfo, cfg *settings.Sections) map[string]string {
	filtered := diff.FilterFiles(files, diff.FilterOptions{
		IgnoreGlobs:   cfg.Config.IgnoreGlob,
		IgnoreRegexes: cfg.Config.IgnoreRegex,
	})
	out := make(map[string]string, len(filtered))
	for _, f := range filtered {
		ext := diff.ExtendPatch(f.BaseContent, f.Patch,
			cfg.Config.PatchExtraLinesBefore, cfg.Config.PatchExtraLinesAfter)
		out[f.Path] = strings.TrimSpace(diff.FormatFile(diff.FilePatchInfo{
			Path:     f.Path,
			Patch:    ext,
			EditType: f.EditType,
		}, false)) + "\n"
	}
	return out
}
