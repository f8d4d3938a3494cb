package server

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/prsentry/prsentry/pkg/settings"
)

// eventPayload covers the fields this server reads from pull_request and
// issue_comment events.
type eventPayload struct {
	Action      string              `json:"action"`
	PullRequest *pullRequestPayload `json:"pull_request"`
	Issue       *issuePayload       `json:"issue"`
	Comment     *commentPayload     `json:"comment"`
	Sender      userPayload         `json:"sender"`
}

type pullRequestPayload struct {
	HTMLURL string      `json:"html_url"`
	Title   string      `json:"title"`
	Draft   bool        `json:"draft"`
	User    userPayload `json:"user"`
}

type issuePayload struct {
	PullRequest *struct {
		HTMLURL string `json:"html_url"`
	} `json:"pull_request"`
}

type commentPayload struct {
	ID   int64       `json:"id"`
	Body string      `json:"body"`
	User userPayload `json:"user"`
}

type userPayload struct {
	Login string `json:"login"`
}

// dispatch routes one verified event. It runs detached from the HTTP
// request.
func (s *Server) dispatch(event, delivery string, p eventPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
	defer cancel()

	log := slog.With("event", event, "action", p.Action, "delivery", delivery)

	var err error
	switch event {
	case "pull_request":
		err = s.handlePullRequest(ctx, p, log)
	case "issue_comment":
		err = s.handleIssueComment(ctx, p, log)
	case "ping":
		log.Info("Webhook ping received")
	default:
		log.Debug("Ignoring unhandled event")
	}
	if err != nil {
		log.Error("Dispatch failed", "error", err)
	}
}

func (s *Server) handlePullRequest(ctx context.Context, p eventPayload, log *slog.Logger) error {
	if p.PullRequest == nil || p.PullRequest.HTMLURL == "" {
		return nil
	}
	url := p.PullRequest.HTMLURL

	ctx, cfg, err := s.scopedSettings(ctx, url)
	if err != nil {
		return err
	}
	if ignored(cfg, p.PullRequest.Title, p.PullRequest.User.Login, log) {
		return nil
	}

	switch p.Action {
	case "opened", "reopened", "ready_for_review":
		if p.PullRequest.Draft {
			log.Info("Skipping draft PR", "pr_url", url)
			return nil
		}
		return s.runCommands(ctx, url, cfg.GitHubApp.PRCommands, log)
	case "synchronize":
		if !cfg.GitHubApp.HandlePushTrigger {
			return nil
		}
		return s.handlePush(ctx, url, cfg, log)
	}
	return nil
}

// handlePush serializes push-triggered runs per PR: one runs, one waits,
// further pushes are dropped until the backlog drains.
func (s *Server) handlePush(ctx context.Context, url string, cfg *settings.Sections, log *slog.Logger) error {
	ttl := time.Duration(cfg.GitHubApp.PushTriggerPendingTTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	run, wait := s.deduper.Begin(url, ttl)
	if !run && wait == nil {
		pushTriggersDropped.Inc()
		log.Info("Push trigger dropped, one is already pending", "pr_url", url)
		return nil
	}
	if !run {
		select {
		case <-wait:
		case <-time.After(ttl):
			s.deduper.CancelPending(url)
		case <-ctx.Done():
			s.deduper.CancelPending(url)
		}
		if !s.deduper.Claim(url) {
			pushTriggersDropped.Inc()
			log.Info("Push trigger expired while pending", "pr_url", url)
			return ctx.Err()
		}
	}
	defer s.deduper.End(url)

	return s.runCommands(ctx, url, cfg.GitHubApp.PushCommands, log)
}

func (s *Server) handleIssueComment(ctx context.Context, p eventPayload, log *slog.Logger) error {
	if p.Issue == nil || p.Issue.PullRequest == nil || p.Comment == nil {
		return nil
	}
	url := p.Issue.PullRequest.HTMLURL

	switch p.Action {
	case "created":
		body := strings.TrimSpace(p.Comment.Body)
		if !strings.HasPrefix(body, "/") {
			return nil
		}
		return s.handleCommand(ctx, url, p, body, log)
	case "edited":
		return s.handleCommentEdit(ctx, url, p, log)
	}
	return nil
}

func (s *Server) handleCommand(ctx context.Context, url string, p eventPayload, body string, log *slog.Logger) error {
	ctx, cfg, err := s.scopedSettings(ctx, url)
	if err != nil {
		return err
	}

	prov, err := s.opts.NewProvider(ctx, url)
	if err != nil {
		return err
	}
	meta, err := prov.GetMeta(ctx)
	if err != nil {
		return err
	}
	if ignored(cfg, meta.Title, meta.Author, log) {
		return nil
	}

	// Acknowledge the command before the pipeline runs.
	if _, err := prov.AddReaction(ctx, p.Comment.ID, "eyes"); err != nil {
		log.Warn("Failed to add reaction", "error", err)
	}

	command, args := splitCommand(body)
	log.Info("Running command from comment", "command", command, "pr_url", url)
	if err := s.opts.Runner.Run(ctx, url, command, args); err != nil {
		dispatchErrors.WithLabelValues(command).Inc()
		return err
	}
	return nil
}

// splitCommand breaks "/review --config.x=y" into the command name and its
// arguments. Only the first line counts.
func splitCommand(body string) (string, []string) {
	line := body
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	return command, fields[1:]
}

func (s *Server) runCommands(ctx context.Context, url string, commands []string, log *slog.Logger) error {
	for _, raw := range commands {
		command, args := splitCommand(strings.TrimSpace(raw))
		log.Info("Running configured command", "command", command, "pr_url", url)
		if err := s.opts.Runner.Run(ctx, url, command, args); err != nil {
			dispatchErrors.WithLabelValues(command).Inc()
			log.Error("Command failed", "command", command, "error", err)
		}
	}
	return nil
}

// scopedSettings overlays the org- and repo-level configuration files over
// the ambient snapshot for the duration of one dispatch.
func (s *Server) scopedSettings(ctx context.Context, url string) (context.Context, *settings.Sections, error) {
	base := settings.Ambient()

	prov, err := s.opts.NewProvider(ctx, url)
	if err != nil {
		return ctx, nil, err
	}

	scoped := base
	for _, fetch := range []func(context.Context) ([]byte, error){prov.GetOrgSettings, prov.GetRepoSettings} {
		data, err := fetch(ctx)
		if err != nil {
			slog.Warn("Failed to fetch scoped settings", "error", err)
			continue
		}
		if data == nil {
			continue
		}
		layer, err := settings.ParseTOMLLayer(data)
		if err != nil {
			slog.Warn("Ignoring malformed scoped settings", "error", err)
			continue
		}
		next, err := scoped.With(layer)
		if err != nil {
			slog.Warn("Ignoring unusable scoped settings", "error", err)
			continue
		}
		scoped = next
	}

	return settings.WithScoped(ctx, scoped), scoped.Sections(), nil
}

// ignored applies the title-regex and author filters.
func ignored(cfg *settings.Sections, title, author string, log *slog.Logger) bool {
	for _, pattern := range cfg.Config.IgnorePRTitle {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn("Invalid ignore_pr_title pattern", "pattern", pattern, "error", err)
			continue
		}
		if re.MatchString(title) {
			log.Info("Ignoring PR by title filter", "title", title, "pattern", pattern)
			return true
		}
	}
	for _, ignoredAuthor := range cfg.Config.IgnorePRAuthors {
		if strings.EqualFold(ignoredAuthor, author) {
			log.Info("Ignoring PR by author filter", "author", author)
			return true
		}
	}
	return false
}
