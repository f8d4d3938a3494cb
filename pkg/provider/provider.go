// Package provider abstracts the git platform a pull request lives on.
//
// The interface is capability-typed: a provider that cannot perform an
// operation returns ErrUnsupported instead of omitting the method, so
// callers degrade per-operation rather than per-provider.
package provider

import (
	"context"
	"time"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/errs"
)

// ErrUnsupported is returned by providers for operations their platform
// cannot perform.
var ErrUnsupported = errs.New(errs.KindUnsupported, "operation not supported by this provider")

// Comment is a platform comment on the PR conversation.
type Comment struct {
	ID        int64
	Body      string
	User      string
	UserID    int64
	CreatedAt time.Time
}

// InlineComment targets a line in the PR diff.
type InlineComment struct {
	Path      string
	Body      string
	StartLine int // 0 when the comment targets a single line
	Line      int // new-file line number
}

// CodeSuggestion is a committable suggestion block.
type CodeSuggestion struct {
	Path      string
	Body      string
	StartLine int
	EndLine   int
}

// PRMeta is the metadata every pipeline starts from.
type PRMeta struct {
	Title        string
	Body         string
	SourceBranch string
	TargetBranch string
	HeadSHA      string
	Author       string
	AuthorID     int64
}

// Provider is the platform surface the tool pipelines run against.
type Provider interface {
	// Identity of the PR this provider instance is bound to.
	Owner() string
	Repo() string
	Number() int

	GetMeta(ctx context.Context) (PRMeta, error)
	GetDiffFiles(ctx context.Context) ([]diff.FilePatchInfo, error)
	GetFilePaths(ctx context.Context) ([]string, error)
	GetLanguages(ctx context.Context) (map[string]int, error)
	GetUserID(ctx context.Context) (int64, error)
	GetCommitMessages(ctx context.Context) (string, error)

	UpdateTitleBody(ctx context.Context, title, body string) error

	// PublishComment returns the new comment's id. Temporary comments are
	// expected to be removed by the caller before the pipeline finishes.
	PublishComment(ctx context.Context, body string, temporary bool) (int64, error)
	EditComment(ctx context.Context, commentID int64, body string) error
	RemoveComment(ctx context.Context, commentID int64) error
	ListComments(ctx context.Context) ([]Comment, error)

	PublishInlineComment(ctx context.Context, c InlineComment) error
	// PublishInlineComments posts all comments as one atomic review on the
	// current head. Implementations fall back to per-comment posting when the
	// atomic review fails.
	PublishInlineComments(ctx context.Context, cs []InlineComment) error
	PublishCodeSuggestions(ctx context.Context, cs []CodeSuggestion) error
	ReplyToComment(ctx context.Context, commentID int64, body string) error
	ListThreadComments(ctx context.Context, commentID int64) ([]Comment, error)

	PublishLabels(ctx context.Context, labels []string) error
	GetLabels(ctx context.Context) ([]string, error)

	AddReaction(ctx context.Context, commentID int64, reaction string) (int64, error)
	RemoveReaction(ctx context.Context, commentID int64, reactionID int64) error

	// GetRepoSettings and GetOrgSettings fetch the optional configuration
	// files; a missing file is (nil, nil).
	GetRepoSettings(ctx context.Context) ([]byte, error)
	GetOrgSettings(ctx context.Context) ([]byte, error)

	CreateOrUpdateFile(ctx context.Context, path, message, branch string, content []byte) error
	AutoApprove(ctx context.Context) error

	// GetLineLink builds a web URL pointing at a file line range in the PR.
	// endLine 0 means a single-line link.
	GetLineLink(path string, startLine, endLine int) string
	// GetCommentLink builds a web URL pointing at a conversation comment.
	GetCommentLink(commentID int64) string
}
