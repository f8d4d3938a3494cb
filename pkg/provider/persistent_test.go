package provider

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsentry/prsentry/pkg/diff"
)

// fakeProvider records comment traffic; every other operation is unsupported.
type fakeProvider struct {
	comments []Comment
	edits    map[int64]string
	nextID   int64
}

func newFakeProvider(existing ...Comment) *fakeProvider {
	return &fakeProvider{comments: existing, edits: map[int64]string{}, nextID: 100}
}

func (f *fakeProvider) Owner() string { return "octo" }
func (f *fakeProvider) Repo() string  { return "demo" }
func (f *fakeProvider) Number() int   { return 7 }

func (f *fakeProvider) ListComments(context.Context) ([]Comment, error) {
	return f.comments, nil
}

func (f *fakeProvider) PublishComment(_ context.Context, body string, _ bool) (int64, error) {
	f.nextID++
	f.comments = append(f.comments, Comment{ID: f.nextID, Body: body})
	return f.nextID, nil
}

func (f *fakeProvider) EditComment(_ context.Context, id int64, body string) error {
	f.edits[id] = body
	return nil
}

func (f *fakeProvider) GetMeta(context.Context) (PRMeta, error) { return PRMeta{}, ErrUnsupported }
func (f *fakeProvider) GetDiffFiles(context.Context) ([]diff.FilePatchInfo, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) GetFilePaths(context.Context) ([]string, error) { return nil, ErrUnsupported }
func (f *fakeProvider) GetLanguages(context.Context) (map[string]int, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) GetUserID(context.Context) (int64, error)          { return 0, ErrUnsupported }
func (f *fakeProvider) GetCommitMessages(context.Context) (string, error) { return "", ErrUnsupported }
func (f *fakeProvider) UpdateTitleBody(context.Context, string, string) error {
	return ErrUnsupported
}
func (f *fakeProvider) RemoveComment(context.Context, int64) error { return ErrUnsupported }
func (f *fakeProvider) PublishInlineComment(context.Context, InlineComment) error {
	return ErrUnsupported
}
func (f *fakeProvider) PublishInlineComments(context.Context, []InlineComment) error {
	return ErrUnsupported
}
func (f *fakeProvider) PublishCodeSuggestions(context.Context, []CodeSuggestion) error {
	return ErrUnsupported
}
func (f *fakeProvider) ReplyToComment(context.Context, int64, string) error { return ErrUnsupported }
func (f *fakeProvider) ListThreadComments(context.Context, int64) ([]Comment, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) PublishLabels(context.Context, []string) error { return ErrUnsupported }
func (f *fakeProvider) GetLabels(context.Context) ([]string, error)   { return nil, ErrUnsupported }
func (f *fakeProvider) AddReaction(context.Context, int64, string) (int64, error) {
	return 0, ErrUnsupported
}
func (f *fakeProvider) RemoveReaction(context.Context, int64, int64) error { return ErrUnsupported }
func (f *fakeProvider) GetRepoSettings(context.Context) ([]byte, error)    { return nil, nil }
func (f *fakeProvider) GetOrgSettings(context.Context) ([]byte, error)     { return nil, nil }
func (f *fakeProvider) CreateOrUpdateFile(context.Context, string, string, string, []byte) error {
	return ErrUnsupported
}
func (f *fakeProvider) AutoApprove(context.Context) error { return ErrUnsupported }
func (f *fakeProvider) GetLineLink(string, int, int) string {
	return "https://example.com/link"
}
func (f *fakeProvider) GetCommentLink(commentID int64) string {
	return fmt.Sprintf("https://example.com/octo/demo/pull/7#issuecomment-%d", commentID)
}

var _ Provider = (*fakeProvider)(nil)

const marker = "<!-- pr-agent:review -->"

func TestUpsertPersistentCommentCreates(t *testing.T) {
	f := newFakeProvider(Comment{ID: 1, Body: "unrelated"})

	id, err := UpsertPersistentComment(context.Background(), f, PersistentCommentOptions{
		Marker: marker,
		Body:   "## PR Reviewer Guide\ncontent",
		Name:   "Review",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	created := f.comments[len(f.comments)-1]
	assert.Contains(t, created.Body, marker)
	assert.Contains(t, created.Body, "PR Reviewer Guide")
}

func TestUpsertPersistentCommentEditsInPlace(t *testing.T) {
	f := newFakeProvider(
		Comment{ID: 1, Body: "unrelated"},
		Comment{ID: 2, Body: "## PR Reviewer Guide\nold\n" + marker},
	)

	id, err := UpsertPersistentComment(context.Background(), f, PersistentCommentOptions{
		Marker:       marker,
		Body:         "## PR Reviewer Guide\nnew content",
		UpdateHeader: "*updated until commit abc123*",
		Name:         "Review",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	edited := f.edits[2]
	require.NotEmpty(t, edited)
	assert.Contains(t, edited, "new content")
	assert.Contains(t, edited, "updated until commit abc123")
	assert.Contains(t, edited, marker)
	// The header sits under the title line.
	assert.Less(t,
		strings.Index(edited, "## PR Reviewer Guide"),
		strings.Index(edited, "updated until commit"))
}

func TestUpsertPersistentCommentNotifies(t *testing.T) {
	f := newFakeProvider(Comment{ID: 2, Body: "body\n" + marker})

	_, err := UpsertPersistentComment(context.Background(), f, PersistentCommentOptions{
		Marker: marker,
		Body:   "fresh",
		Notify: true,
		Name:   "Review",
	})
	require.NoError(t, err)

	note := f.comments[len(f.comments)-1]
	assert.Contains(t, note.Body, "was updated")
	// The link is built by the provider, not hardcoded here.
	assert.Contains(t, note.Body, "https://example.com/octo/demo/pull/7#issuecomment-2")
}
