// Package tools implements the PR pipelines: review, describe, improve, ask.
//
// Every pipeline follows the same skeleton: fetch metadata, compress the
// diff, render prompts, call the model with fallback, extract YAML, format,
// publish. Publishing is idempotent through hidden comment markers.
package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/llm"
	"github.com/prsentry/prsentry/pkg/prompts"
	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/settings"
)

// Deps are the collaborators every tool runs against.
type Deps struct {
	Provider  provider.Provider
	Completer llm.Completer
	// Out receives the formatted artifact when publishing is disabled.
	// Defaults to stdout.
	Out io.Writer
}

func (d Deps) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}

// conf returns the scoped settings snapshot for this invocation.
func conf(ctx context.Context) *settings.Sections {
	return settings.FromContext(ctx).Sections()
}

// compressOpts builds the compressor options from the resolved settings.
func compressOpts(cfg *settings.Sections, lineNumbers bool) diff.CompressOptions {
	return diff.CompressOptions{
		Model:          cfg.Config.Model,
		LineNumbers:    lineNumbers,
		ExtraBefore:    cfg.Config.PatchExtraLinesBefore,
		ExtraAfter:     cfg.Config.PatchExtraLinesAfter,
		FallbackTokens: cfg.Config.MaxModelTokens,
		CustomMax:      cfg.Config.CustomModelMaxTokens,
		Filter: diff.FilterOptions{
			IgnoreGlobs:   cfg.Config.IgnoreGlob,
			IgnoreRegexes: cfg.Config.IgnoreRegex,
		},
	}
}

// tempComment publishes a temporary "preparing" comment and returns a remove
// func that is safe on every exit path.
func tempComment(ctx context.Context, p provider.Provider, publish bool, text string) func() {
	if !publish {
		return func() {}
	}
	id, err := p.PublishComment(ctx, text, true)
	if err != nil {
		slog.Warn("Failed to publish preparing comment", "error", err)
		return func() {}
	}
	return func() {
		if err := p.RemoveComment(ctx, id); err != nil {
			slog.Warn("Failed to remove preparing comment", "comment_id", id, "error", err)
		}
	}
}

// chat renders no prompts itself; it sends an already-rendered pair through
// the fallback chain using the configured models.
func chat(ctx context.Context, d Deps, cfg *settings.Sections, prompt prompts.Prompt) (string, error) {
	resp, err := llm.ChatWithFallback(ctx, d.Completer, llm.Request{
		Model:       cfg.Config.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: cfg.Config.Temperature,
	}, cfg.Config.FallbackModels)
	if err != nil {
		return "", err
	}
	if resp.FinishReason == llm.FinishLength {
		slog.Warn("Model output truncated by length limit")
	}
	return resp.Content, nil
}

// baseVars builds the template variables shared by all pipelines.
func baseVars(meta provider.PRMeta, compressed, commitMessages string) map[string]any {
	return map[string]any{
		"Title":          meta.Title,
		"Branch":         meta.SourceBranch,
		"Description":    meta.Body,
		"CommitMessages": commitMessages,
		"Diff":           compressed,
	}
}

// publishOrPrint publishes body through publishFn, or writes it to the
// output stream when publishing is disabled.
func publishOrPrint(d Deps, publish bool, body string, publishFn func() error) error {
	if !publish {
		_, err := fmt.Fprintln(d.out(), strings.TrimSpace(body))
		return err
	}
	return publishFn()
}
