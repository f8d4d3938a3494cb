package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/errs"
	"github.com/prsentry/prsentry/pkg/prompts"
	"github.com/prsentry/prsentry/pkg/yamlex"
)

// Describe runs the describer pipeline: it regenerates the PR title and
// body while preserving the author's original description across runs.
type Describe struct {
	Deps
}

type describeResult struct {
	Types       []string
	Title       string
	Description string
	Diagram     string
	Files       []fileEntry
}

type fileEntry struct {
	Filename string
	Language string
	Title    string
	Summary  string
	Label    string
}

// legacyUserDescriptionHeader bounded older-format bodies before the hidden
// marker existed.
const legacyUserDescriptionHeader = "### **User description**"

var legacyGeneratedHeaders = []string{
	"## **PR Type**",
	"### **PR Type**",
	"## **Description**",
	"### **Description**",
	"## **Changes walkthrough**",
	"___",
}

// StripGeneratedContent recovers the author's original description from a
// body previously produced by this pipeline. The original text sits before
// the hidden marker; legacy bodies carry it under a "User description"
// header instead.
func StripGeneratedContent(body string) string {
	if idx := strings.Index(body, DescribeMarker); idx >= 0 {
		return strings.TrimSpace(body[:idx])
	}
	if idx := strings.Index(body, legacyUserDescriptionHeader); idx >= 0 {
		rest := body[idx+len(legacyUserDescriptionHeader):]
		end := len(rest)
		for _, header := range legacyGeneratedHeaders {
			if i := strings.Index(rest, header); i >= 0 && i < end {
				end = i
			}
		}
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(body)
}

// Run executes the describe pipeline.
func (t Describe) Run(ctx context.Context) error {
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
		slog.Info("No files in PR, skipping describe", "pr", t.Provider.Number())
		return nil
	}

	remove := tempComment(ctx, t.Provider, publish, "Preparing PR description...")
	defer remove()

	original := StripGeneratedContent(meta.Body)

	compressed := diff.Compress(files, compressOpts(cfg, false))
	commitMessages, err := t.Provider.GetCommitMessages(ctx)
	if err != nil {
		slog.Warn("Failed to fetch commit messages", "error", err)
	}

	vars := baseVars(meta, compressed.Patch, commitMessages)
	vars["Description"] = original
	vars["ExtraInstructions"] = cfg.Describer.ExtraInstructions

	prompt, err := prompts.Render("describe", vars)
	if err != nil {
		return err
	}
	raw, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return err
	}

	parsed, ok := yamlex.Extract(raw, yamlex.Options{
		KnownKeys: []string{
			"title", "description", "changes_title", "changes_summary", "label",
		},
		FirstKey: "type",
		LastKey:  "pr_files",
	})
	if !ok {
		return errs.New(errs.KindYAMLParse, "could not parse describe output")
	}
	result := parseDescribe(parsed)

	title := meta.Title
	if cfg.Describer.GenerateAITitle && result.Title != "" {
		title = result.Title
	}
	body := assembleDescribeBody(result, original, cfg)

	return publishOrPrint(t.Deps, publish, title+"\n\n"+body, func() error {
		if err := t.Provider.UpdateTitleBody(ctx, title, body); err != nil {
			return err
		}
		if cfg.Describer.PublishLabels && len(result.Types) > 0 {
			t.publishTypeLabels(ctx, result.Types)
		}
		return nil
	})
}

func parseDescribe(m map[string]any) describeResult {
	var r describeResult

	switch v := m["type"].(type) {
	case []any:
		for _, item := range v {
			if s := yamlex.ToString(item); s != "" {
				r.Types = append(r.Types, s)
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			r.Types = append(r.Types, s)
		}
	}

	r.Title = yamlex.ToString(m["title"])
	r.Description = yamlex.ToString(m["description"])
	r.Diagram = yamlex.ToString(m["changes_diagram"])

	entries, _ := m["pr_files"].([]any)
	for _, raw := range entries {
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		f := fileEntry{
			Filename: yamlex.ToString(entry["filename"]),
			Language: yamlex.ToString(entry["language"]),
			Title:    yamlex.ToString(entry["changes_title"]),
			Summary:  yamlex.ToString(entry["changes_summary"]),
			Label:    yamlex.ToString(entry["label"]),
		}
		if f.Filename == "" {
			continue
		}
		if f.Label == "" {
			f.Label = "miscellaneous"
		}
		r.Files = append(r.Files, f)
	}
	return r
}

var prTypeLabels = map[string]bool{
	"bug fix": true, "tests": true, "enhancement": true,
	"documentation": true, "other": true,
}

func (t Describe) publishTypeLabels(ctx context.Context, types []string) {
	current, err := t.Provider.GetLabels(ctx)
	if err != nil {
		slog.Warn("Failed to list labels", "error", err)
	}

	merged := make([]string, 0, len(current)+len(types))
	for _, l := range current {
		if !prTypeLabels[strings.ToLower(l)] {
			merged = append(merged, l)
		}
	}
	merged = append(merged, types...)

	if err := t.Provider.PublishLabels(ctx, merged); err != nil {
		slog.Warn("Failed to publish type labels", "error", err)
	}
}
