package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/errs"
	"github.com/prsentry/prsentry/pkg/prompts"
)

// Ask answers a free-form question about the whole PR.
type Ask struct {
	Deps
	Question string
}

// Run executes the ask pipeline.
func (t Ask) Run(ctx context.Context) error {
	cfg := conf(ctx)
	publish := cfg.Config.PublishOutput

	question := strings.TrimSpace(t.Question)
	if question == "" {
		return errs.New(errs.KindConfig, "no question provided")
	}

	meta, err := t.Provider.GetMeta(ctx)
	if err != nil {
		return err
	}
	files, err := t.Provider.GetDiffFiles(ctx)
	if err != nil {
		return err
	}

	remove := tempComment(ctx, t.Provider, publish, "Preparing answer...")
	defer remove()

	compressed := diff.Compress(files, compressOpts(cfg, false))
	commitMessages, err := t.Provider.GetCommitMessages(ctx)
	if err != nil {
		slog.Warn("Failed to fetch commit messages", "error", err)
	}

	vars := baseVars(meta, compressed.Patch, commitMessages)
	vars["Question"] = question
	vars["ExtraInstructions"] = cfg.Questions.ExtraInstructions

	prompt, err := prompts.Render("ask", vars)
	if err != nil {
		return err
	}
	answer, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("### **Ask**❓\n> %s\n\n%s\n", question, strings.TrimSpace(answer))
	return publishOrPrint(t.Deps, publish, body, func() error {
		_, err := t.Provider.PublishComment(ctx, body, false)
		return err
	})
}

// AskLine answers a question about a selected line range of one changed file.
type AskLine struct {
	Deps
	FilePath  string
	StartLine int
	EndLine   int
	Question  string
}

// Run executes the line-scoped ask pipeline.
func (t AskLine) Run(ctx context.Context) error {
	cfg := conf(ctx)
	publish := cfg.Config.PublishOutput

	question := strings.TrimSpace(t.Question)
	if question == "" {
		return errs.New(errs.KindConfig, "no question provided")
	}
	if t.StartLine < 1 || t.EndLine < t.StartLine {
		return errs.Newf(errs.KindConfig, "invalid line range %d-%d", t.StartLine, t.EndLine)
	}

	meta, err := t.Provider.GetMeta(ctx)
	if err != nil {
		return err
	}
	files, err := t.Provider.GetDiffFiles(ctx)
	if err != nil {
		return err
	}

	var target *diff.FilePatchInfo
	for i := range files {
		if files[i].Path == t.FilePath {
			target = &files[i]
			break
		}
	}
	if target == nil {
		return errs.Newf(errs.KindConfig, "file %q is not part of the PR diff", t.FilePath)
	}

	selected := selectLines(target.HeadContent, t.StartLine, t.EndLine)
	if selected == "" {
		return errs.Newf(errs.KindConfig, "lines %d-%d are out of range for %q",
			t.StartLine, t.EndLine, t.FilePath)
	}

	remove := tempComment(ctx, t.Provider, publish, "Preparing answer...")
	defer remove()

	fileDiff := diff.FormatFile(*target, false)

	prompt, err := prompts.Render("ask_line", map[string]any{
		"Title":         meta.Title,
		"FilePath":      t.FilePath,
		"StartLine":     t.StartLine,
		"EndLine":       t.EndLine,
		"SelectedLines": selected,
		"Diff":          fileDiff,
		"Question":      question,
	})
	if err != nil {
		return err
	}
	answer, err := chat(ctx, t.Deps, cfg, prompt)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("### **Ask about lines %d-%d of `%s`**❓\n> %s\n\n%s\n",
		t.StartLine, t.EndLine, t.FilePath, question, strings.TrimSpace(answer))
	return publishOrPrint(t.Deps, publish, body, func() error {
		_, err := t.Provider.PublishComment(ctx, body, false)
		return err
	})
}

// selectLines returns the 1-based inclusive line range from content, clamped
// to the file's length. An empty string means the range starts past the end.
func selectLines(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	if start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n")
}
