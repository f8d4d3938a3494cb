// Package githubprov implements the platform provider against the GitHub
// REST API, in either user-token or app-installation auth mode.
package githubprov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	gh "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/errs"
	"github.com/prsentry/prsentry/pkg/provider"
)

const (
	defaultWebBase         = "https://github.com"
	defaultMaxCommentChars = 65000
	truncationNotice       = "\n\n...(comment truncated)"
	repoSettingsPath       = ".pr_agent.toml"
	orgSettingsRepo        = "pr-agent-settings"
)

// Config describes one PR-bound provider instance.
type Config struct {
	Owner  string
	Repo   string
	Number int

	// Token authenticates as a user; App as a GitHub App installation. App
	// wins when both are set.
	Token string
	App   *AppAuth

	// BaseURL is the API endpoint for enterprise deployments; empty means
	// the public API.
	BaseURL string
	// WebBase is the browser-facing host used for line links.
	WebBase string

	RateLimitRetries int
	MaxCommentChars  int
}

// Provider implements provider.Provider for GitHub.
type Provider struct {
	client          *gh.Client
	owner           string
	repo            string
	number          int
	webBase         string
	maxCommentChars int

	mu sync.Mutex
	pr *gh.PullRequest
}

var _ provider.Provider = (*Provider)(nil)

// New builds an authenticated provider bound to one pull request.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	token := cfg.Token
	if cfg.App != nil {
		t, err := cfg.App.InstallationToken(ctx, cfg.BaseURL, cfg.Owner)
		if err != nil {
			return nil, err
		}
		token = t
	}
	if token == "" {
		return nil, errs.New(errs.KindConfig, "github provider requires a user token or app credentials")
	}

	retries := cfg.RateLimitRetries
	if retries <= 0 {
		retries = 5
	}
	hc := &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   newRetryTransport(nil, retries),
	}}

	client, err := newAPIClient(hc, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	client.UserAgent = "prsentry"

	webBase := cfg.WebBase
	if webBase == "" {
		webBase = defaultWebBase
	}
	maxChars := cfg.MaxCommentChars
	if maxChars <= 0 {
		maxChars = defaultMaxCommentChars
	}

	return &Provider{
		client:          client,
		owner:           cfg.Owner,
		repo:            cfg.Repo,
		number:          cfg.Number,
		webBase:         webBase,
		maxCommentChars: maxChars,
	}, nil
}

func (p *Provider) Owner() string { return p.owner }
func (p *Provider) Repo() string  { return p.repo }
func (p *Provider) Number() int   { return p.number }

func (p *Provider) fetchPR(ctx context.Context) (*gh.PullRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pr != nil {
		return p.pr, nil
	}
	pr, _, err := p.client.PullRequests.Get(ctx, p.owner, p.repo, p.number)
	if err != nil {
		return nil, errs.Wrap(errs.KindGitProvider, "fetching pull request", err)
	}
	p.pr = pr
	return pr, nil
}

// GetMeta returns the PR's title, body, branches, head SHA and author.
func (p *Provider) GetMeta(ctx context.Context) (provider.PRMeta, error) {
	pr, err := p.fetchPR(ctx)
	if err != nil {
		return provider.PRMeta{}, err
	}
	return provider.PRMeta{
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		HeadSHA:      pr.GetHead().GetSHA(),
		Author:       pr.GetUser().GetLogin(),
		AuthorID:     pr.GetUser().GetID(),
	}, nil
}

// GetDiffFiles lists the PR's changed files with base and head contents.
func (p *Provider) GetDiffFiles(ctx context.Context) ([]diff.FilePatchInfo, error) {
	pr, err := p.fetchPR(ctx)
	if err != nil {
		return nil, err
	}
	baseSHA := pr.GetBase().GetSHA()
	headSHA := pr.GetHead().GetSHA()

	var out []diff.FilePatchInfo
	opts := &gh.ListOptions{PerPage: 100}
	for {
		files, resp, err := p.client.PullRequests.ListFiles(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return nil, errs.Wrap(errs.KindGitProvider, "listing PR files", err)
		}
		for _, f := range files {
			info := diff.FilePatchInfo{
				Path:     f.GetFilename(),
				PrevPath: f.GetPreviousFilename(),
				Patch:    f.GetPatch(),
				EditType: editTypeOf(f.GetStatus()),
				NumPlus:  f.GetAdditions(),
				NumMinus: f.GetDeletions(),
			}
			if info.EditType != diff.EditAdded {
				basePath := info.Path
				if info.EditType == diff.EditRenamed && info.PrevPath != "" {
					basePath = info.PrevPath
				}
				info.BaseContent = p.fileContent(ctx, basePath, baseSHA)
			}
			if info.EditType != diff.EditDeleted {
				info.HeadContent = p.fileContent(ctx, info.Path, headSHA)
			}
			out = append(out, info)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func editTypeOf(status string) diff.EditType {
	switch status {
	case "added":
		return diff.EditAdded
	case "removed":
		return diff.EditDeleted
	case "modified", "changed":
		return diff.EditModified
	case "renamed":
		return diff.EditRenamed
	default:
		return diff.EditUnknown
	}
}

// fileContent fetches one file at a ref; failures degrade to empty content
// since patch extension is best-effort.
func (p *Provider) fileContent(ctx context.Context, path, ref string) string {
	fc, _, _, err := p.client.Repositories.GetContents(ctx, p.owner, p.repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil || fc == nil {
		return ""
	}
	content, err := fc.GetContent()
	if err != nil {
		return ""
	}
	return content
}

// GetFilePaths lists the changed file paths without contents.
func (p *Provider) GetFilePaths(ctx context.Context) ([]string, error) {
	var paths []string
	opts := &gh.ListOptions{PerPage: 100}
	for {
		files, resp, err := p.client.PullRequests.ListFiles(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return nil, errs.Wrap(errs.KindGitProvider, "listing PR files", err)
		}
		for _, f := range files {
			paths = append(paths, f.GetFilename())
		}
		if resp.NextPage == 0 {
			return paths, nil
		}
		opts.Page = resp.NextPage
	}
}

func (p *Provider) GetLanguages(ctx context.Context) (map[string]int, error) {
	langs, _, err := p.client.Repositories.ListLanguages(ctx, p.owner, p.repo)
	if err != nil {
		return nil, errs.Wrap(errs.KindGitProvider, "listing repository languages", err)
	}
	return langs, nil
}

func (p *Provider) GetUserID(ctx context.Context) (int64, error) {
	user, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return 0, errs.Wrap(errs.KindGitProvider, "fetching authenticated user", err)
	}
	return user.GetID(), nil
}

// GetCommitMessages joins the PR's commit messages, newest last.
func (p *Provider) GetCommitMessages(ctx context.Context) (string, error) {
	var messages []string
	opts := &gh.ListOptions{PerPage: 100}
	for {
		commits, resp, err := p.client.PullRequests.ListCommits(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return "", errs.Wrap(errs.KindGitProvider, "listing PR commits", err)
		}
		for _, c := range commits {
			if msg := strings.TrimSpace(c.GetCommit().GetMessage()); msg != "" {
				messages = append(messages, msg)
			}
		}
		if resp.NextPage == 0 {
			return strings.Join(messages, "\n"), nil
		}
		opts.Page = resp.NextPage
	}
}

func (p *Provider) UpdateTitleBody(ctx context.Context, title, body string) error {
	body = p.clampBody(body)
	_, _, err := p.client.PullRequests.Edit(ctx, p.owner, p.repo, p.number,
		&gh.PullRequest{Title: gh.Ptr(title), Body: gh.Ptr(body)})
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "updating PR title/body", err)
	}
	return nil
}

// PublishComment posts a conversation comment and returns its id.
func (p *Provider) PublishComment(ctx context.Context, body string, temporary bool) (int64, error) {
	if temporary {
		slog.Debug("Publishing temporary comment", "pr", p.number)
	}
	c, _, err := p.client.Issues.CreateComment(ctx, p.owner, p.repo, p.number,
		&gh.IssueComment{Body: gh.Ptr(p.clampBody(body))})
	if err != nil {
		return 0, errs.Wrap(errs.KindGitProvider, "publishing comment", err)
	}
	return c.GetID(), nil
}

func (p *Provider) EditComment(ctx context.Context, commentID int64, body string) error {
	_, _, err := p.client.Issues.EditComment(ctx, p.owner, p.repo, commentID,
		&gh.IssueComment{Body: gh.Ptr(p.clampBody(body))})
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "editing comment", err)
	}
	return nil
}

func (p *Provider) RemoveComment(ctx context.Context, commentID int64) error {
	_, err := p.client.Issues.DeleteComment(ctx, p.owner, p.repo, commentID)
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "removing comment", err)
	}
	return nil
}

func (p *Provider) ListComments(ctx context.Context) ([]provider.Comment, error) {
	var out []provider.Comment
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := p.client.Issues.ListComments(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return nil, errs.Wrap(errs.KindGitProvider, "listing comments", err)
		}
		for _, c := range comments {
			out = append(out, provider.Comment{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				User:      c.GetUser().GetLogin(),
				UserID:    c.GetUser().GetID(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// PublishInlineComment posts one review comment on the current head.
func (p *Provider) PublishInlineComment(ctx context.Context, c provider.InlineComment) error {
	pr, err := p.fetchPR(ctx)
	if err != nil {
		return err
	}
	comment := &gh.PullRequestComment{
		Body:     gh.Ptr(p.clampBody(c.Body)),
		Path:     gh.Ptr(c.Path),
		CommitID: gh.Ptr(pr.GetHead().GetSHA()),
		Line:     gh.Ptr(c.Line),
		Side:     gh.Ptr("RIGHT"),
	}
	if c.StartLine > 0 && c.StartLine < c.Line {
		comment.StartLine = gh.Ptr(c.StartLine)
		comment.StartSide = gh.Ptr("RIGHT")
	}
	_, _, err = p.client.PullRequests.CreateComment(ctx, p.owner, p.repo, p.number, comment)
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "publishing inline comment", err)
	}
	return nil
}

// PublishInlineComments posts all comments as one review; when the atomic
// review fails, each comment is posted individually.
func (p *Provider) PublishInlineComments(ctx context.Context, cs []provider.InlineComment) error {
	if len(cs) == 0 {
		return nil
	}
	pr, err := p.fetchPR(ctx)
	if err != nil {
		return err
	}

	drafts := make([]*gh.DraftReviewComment, 0, len(cs))
	for _, c := range cs {
		d := &gh.DraftReviewComment{
			Path: gh.Ptr(c.Path),
			Body: gh.Ptr(p.clampBody(c.Body)),
			Line: gh.Ptr(c.Line),
			Side: gh.Ptr("RIGHT"),
		}
		if c.StartLine > 0 && c.StartLine < c.Line {
			d.StartLine = gh.Ptr(c.StartLine)
			d.StartSide = gh.Ptr("RIGHT")
		}
		drafts = append(drafts, d)
	}

	_, _, err = p.client.PullRequests.CreateReview(ctx, p.owner, p.repo, p.number,
		&gh.PullRequestReviewRequest{
			CommitID: gh.Ptr(pr.GetHead().GetSHA()),
			Event:    gh.Ptr("COMMENT"),
			Comments: drafts,
		})
	if err == nil {
		return nil
	}
	slog.Warn("Atomic review failed, falling back to per-comment posting", "error", err)

	var failed []error
	for _, c := range cs {
		if err := p.PublishInlineComment(ctx, c); err != nil {
			slog.Warn("Inline comment failed", "path", c.Path, "line", c.Line, "error", err)
			failed = append(failed, err)
		}
	}
	if len(failed) == len(cs) {
		return errs.Wrap(errs.KindGitProvider, "all inline comments failed", errors.Join(failed...))
	}
	return nil
}

// PublishCodeSuggestions posts committable suggestion blocks as inline
// comments.
func (p *Provider) PublishCodeSuggestions(ctx context.Context, cs []provider.CodeSuggestion) error {
	inline := make([]provider.InlineComment, 0, len(cs))
	for _, s := range cs {
		inline = append(inline, provider.InlineComment{
			Path:      s.Path,
			Body:      s.Body,
			StartLine: s.StartLine,
			Line:      s.EndLine,
		})
	}
	return p.PublishInlineComments(ctx, inline)
}

func (p *Provider) ReplyToComment(ctx context.Context, commentID int64, body string) error {
	_, _, err := p.client.PullRequests.CreateCommentInReplyTo(ctx, p.owner, p.repo, p.number,
		p.clampBody(body), commentID)
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "replying to comment", err)
	}
	return nil
}

// ListThreadComments returns the review-comment thread rooted at commentID.
func (p *Provider) ListThreadComments(ctx context.Context, commentID int64) ([]provider.Comment, error) {
	var out []provider.Comment
	opts := &gh.PullRequestListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := p.client.PullRequests.ListComments(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return nil, errs.Wrap(errs.KindGitProvider, "listing review comments", err)
		}
		for _, c := range comments {
			if c.GetID() != commentID && c.GetInReplyTo() != commentID {
				continue
			}
			out = append(out, provider.Comment{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				User:      c.GetUser().GetLogin(),
				UserID:    c.GetUser().GetID(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// PublishLabels replaces the PR's labels.
func (p *Provider) PublishLabels(ctx context.Context, labels []string) error {
	_, _, err := p.client.Issues.ReplaceLabelsForIssue(ctx, p.owner, p.repo, p.number, labels)
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "publishing labels", err)
	}
	return nil
}

func (p *Provider) GetLabels(ctx context.Context) ([]string, error) {
	labels, _, err := p.client.Issues.ListLabelsByIssue(ctx, p.owner, p.repo, p.number,
		&gh.ListOptions{PerPage: 100})
	if err != nil {
		return nil, errs.Wrap(errs.KindGitProvider, "listing labels", err)
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.GetName())
	}
	return out, nil
}

// AddReaction reacts to a conversation comment, returning the reaction id.
func (p *Provider) AddReaction(ctx context.Context, commentID int64, reaction string) (int64, error) {
	r, _, err := p.client.Reactions.CreateIssueCommentReaction(ctx, p.owner, p.repo, commentID, reaction)
	if err != nil {
		return 0, errs.Wrap(errs.KindGitProvider, "adding reaction", err)
	}
	return r.GetID(), nil
}

func (p *Provider) RemoveReaction(ctx context.Context, commentID, reactionID int64) error {
	_, err := p.client.Reactions.DeleteIssueCommentReaction(ctx, p.owner, p.repo, commentID, reactionID)
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "removing reaction", err)
	}
	return nil
}

// GetRepoSettings fetches .pr_agent.toml from the PR's source branch; a
// missing file is not an error.
func (p *Provider) GetRepoSettings(ctx context.Context) ([]byte, error) {
	pr, err := p.fetchPR(ctx)
	if err != nil {
		return nil, err
	}
	return p.settingsFile(ctx, p.owner, p.repo, pr.GetHead().GetRef())
}

// GetOrgSettings fetches .pr_agent.toml from the owner's pr-agent-settings
// repository.
func (p *Provider) GetOrgSettings(ctx context.Context) ([]byte, error) {
	return p.settingsFile(ctx, p.owner, orgSettingsRepo, "")
}

func (p *Provider) settingsFile(ctx context.Context, owner, repo, ref string) ([]byte, error) {
	fc, _, resp, err := p.client.Repositories.GetContents(ctx, owner, repo, repoSettingsPath,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindGitProvider, "fetching settings file", err)
	}
	if fc == nil {
		return nil, nil
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, errs.Wrap(errs.KindGitProvider, "decoding settings file", err)
	}
	return []byte(content), nil
}

// CreateOrUpdateFile writes content to path on branch, updating in place
// when the file already exists.
func (p *Provider) CreateOrUpdateFile(ctx context.Context, path, message, branch string, content []byte) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: content,
		Branch:  gh.Ptr(branch),
	}

	existing, _, resp, err := p.client.Repositories.GetContents(ctx, p.owner, p.repo, path,
		&gh.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && existing != nil:
		opts.SHA = existing.SHA
		_, _, err = p.client.Repositories.UpdateFile(ctx, p.owner, p.repo, path, opts)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		_, _, err = p.client.Repositories.CreateFile(ctx, p.owner, p.repo, path, opts)
	default:
		return errs.Wrap(errs.KindGitProvider, "checking existing file", err)
	}
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "writing repository file", err)
	}
	return nil
}

// AutoApprove submits an approving review.
func (p *Provider) AutoApprove(ctx context.Context) error {
	_, _, err := p.client.PullRequests.CreateReview(ctx, p.owner, p.repo, p.number,
		&gh.PullRequestReviewRequest{Event: gh.Ptr("APPROVE")})
	if err != nil {
		return errs.Wrap(errs.KindGitProvider, "auto-approving PR", err)
	}
	return nil
}

// clampBody truncates a comment body to the platform limit on a UTF-8
// boundary.
func (p *Provider) clampBody(body string) string {
	limit := p.maxCommentChars - len(truncationNotice)
	if len(body) <= p.maxCommentChars || limit <= 0 {
		return body
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + truncationNotice
}

// GetLineLink builds the browser URL for a file range in the PR's Files tab.
// GitHub anchors file diffs by the SHA-256 of the path and lines by R-anchors
// on the new side.
func (p *Provider) GetLineLink(path string, startLine, endLine int) string {
	link := fmt.Sprintf("%s/%s/%s/pull/%d/files#%sR%d",
		p.webBase, p.owner, p.repo, p.number, fileAnchor(path), startLine)
	if endLine > startLine {
		link += fmt.Sprintf("-R%d", endLine)
	}
	return link
}

// GetCommentLink builds the browser URL for a conversation comment.
func (p *Provider) GetCommentLink(commentID int64) string {
	return fmt.Sprintf("%s/%s/%s/pull/%d#issuecomment-%d",
		p.webBase, p.owner, p.repo, p.number, commentID)
}
