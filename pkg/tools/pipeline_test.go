package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/llm"
	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/settings"
)

// fakeProvider records every publish-side call the pipelines make.
type fakeProvider struct {
	meta  provider.PRMeta
	files []diff.FilePatchInfo

	nextID      int64
	comments    []provider.Comment
	labels      []string
	title, body string
	updated     bool
	suggestions []provider.CodeSuggestion
	suggestErr  error
	inline      []provider.InlineComment
	removed     []int64
}

func (f *fakeProvider) Owner() string { return "octo" }
func (f *fakeProvider) Repo() string  { return "demo" }
func (f *fakeProvider) Number() int   { return 7 }

func (f *fakeProvider) GetMeta(context.Context) (provider.PRMeta, error) { return f.meta, nil }
func (f *fakeProvider) GetDiffFiles(context.Context) ([]diff.FilePatchInfo, error) {
	return f.files, nil
}
func (f *fakeProvider) GetFilePaths(context.Context) ([]string, error) {
	paths := make([]string, len(f.files))
	for i, file := range f.files {
		paths[i] = file.Path
	}
	return paths, nil
}
func (f *fakeProvider) GetLanguages(context.Context) (map[string]int, error) { return nil, nil }
func (f *fakeProvider) GetUserID(context.Context) (int64, error)             { return 99, nil }
func (f *fakeProvider) GetCommitMessages(context.Context) (string, error) {
	return "fix: adjust handler", nil
}

func (f *fakeProvider) UpdateTitleBody(_ context.Context, title, body string) error {
	f.title, f.body, f.updated = title, body, true
	return nil
}

func (f *fakeProvider) PublishComment(_ context.Context, body string, _ bool) (int64, error) {
	f.nextID++
	f.comments = append(f.comments, provider.Comment{
		ID: f.nextID, Body: body, User: "pr-sentry[bot]", CreatedAt: time.Now(),
	})
	return f.nextID, nil
}

func (f *fakeProvider) EditComment(_ context.Context, id int64, body string) error {
	for i := range f.comments {
		if f.comments[i].ID == id {
			f.comments[i].Body = body
			return nil
		}
	}
	return fmt.Errorf("comment %d not found", id)
}

func (f *fakeProvider) RemoveComment(_ context.Context, id int64) error {
	f.removed = append(f.removed, id)
	for i := range f.comments {
		if f.comments[i].ID == id {
			f.comments = append(f.comments[:i], f.comments[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeProvider) ListComments(context.Context) ([]provider.Comment, error) {
	return append([]provider.Comment(nil), f.comments...), nil
}

func (f *fakeProvider) PublishInlineComment(_ context.Context, c provider.InlineComment) error {
	f.inline = append(f.inline, c)
	return nil
}
func (f *fakeProvider) PublishInlineComments(_ context.Context, cs []provider.InlineComment) error {
	f.inline = append(f.inline, cs...)
	return nil
}
func (f *fakeProvider) PublishCodeSuggestions(_ context.Context, cs []provider.CodeSuggestion) error {
	if f.suggestErr != nil {
		return f.suggestErr
	}
	f.suggestions = append(f.suggestions, cs...)
	return nil
}
func (f *fakeProvider) ReplyToComment(context.Context, int64, string) error { return nil }
func (f *fakeProvider) ListThreadComments(context.Context, int64) ([]provider.Comment, error) {
	return nil, nil
}

func (f *fakeProvider) PublishLabels(_ context.Context, labels []string) error {
	f.labels = labels
	return nil
}
func (f *fakeProvider) GetLabels(context.Context) ([]string, error) {
	return append([]string(nil), f.labels...), nil
}

func (f *fakeProvider) AddReaction(context.Context, int64, string) (int64, error) { return 1, nil }
func (f *fakeProvider) RemoveReaction(context.Context, int64, int64) error        { return nil }

func (f *fakeProvider) GetRepoSettings(context.Context) ([]byte, error) { return nil, nil }
func (f *fakeProvider) GetOrgSettings(context.Context) ([]byte, error)  { return nil, nil }

func (f *fakeProvider) CreateOrUpdateFile(context.Context, string, string, string, []byte) error {
	return nil
}
func (f *fakeProvider) AutoApprove(context.Context) error { return nil }

func (f *fakeProvider) GetLineLink(path string, start, end int) string {
	if end > 0 && end != start {
		return fmt.Sprintf("https://github.test/octo/demo/pull/7/files#%s-L%d-L%d", path, start, end)
	}
	return fmt.Sprintf("https://github.test/octo/demo/pull/7/files#%s-L%d", path, start)
}

func (f *fakeProvider) GetCommentLink(commentID int64) string {
	return fmt.Sprintf("https://github.test/octo/demo/pull/7#issuecomment-%d", commentID)
}

// scriptedCompleter returns canned responses in order. errOn, when non-zero,
// fails that call (1-based) without consuming a response.
type scriptedCompleter struct {
	responses []string
	errOn     int
	calls     int
	served    int
}

func (c *scriptedCompleter) ChatCompletion(_ context.Context, _ llm.Request) (llm.ChatResponse, error) {
	c.calls++
	if c.calls == c.errOn {
		return llm.ChatResponse{}, fmt.Errorf("model unavailable")
	}
	if c.served >= len(c.responses) {
		return llm.ChatResponse{}, fmt.Errorf("unexpected model call %d", c.calls)
	}
	resp := c.responses[c.served]
	c.served++
	return llm.ChatResponse{Content: resp, FinishReason: llm.FinishStop}, nil
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	idx := strings.Index(s, sub)
	require.GreaterOrEqual(t, idx, 0, "missing %q", sub)
	return idx
}

func countOccurrences(s, sub string) int { return strings.Count(s, sub) }

func testSections(t *testing.T) *settings.Sections {
	t.Helper()
	return conf(testCtx(t))
}

func testCtx(t *testing.T, overrides ...string) context.Context {
	t.Helper()
	s, err := settings.Resolve(settings.ResolveOptions{
		SecretsFiles: []string{},
		CLIOverrides: overrides,
		Environ:      []string{},
	})
	require.NoError(t, err)
	return settings.WithScoped(context.Background(), s)
}

func samplePatch() string {
	return "@@ -8,6 +8,9 @@ fn main() {\n line8\n line9\n line10\n+new11\n+new12\n+new13\n line11\n line12\n line13\n"
}

func sampleFiles() []diff.FilePatchInfo {
	return []diff.FilePatchInfo{{
		Path:     "src/main.rs",
		Patch:    samplePatch(),
		EditType: diff.EditModified,
		NumPlus:  3,
	}}
}

const reviewYAML = `review:
  estimated_effort_to_review_[1-5]: 3
  relevant_tests: "No"
  security_concerns: "No"
  key_issues_to_review:
  - relevant_file: src/main.rs
    issue_header: "Possible bug"
    issue_content: "The new bounds check skips the last element"
    start_line: 11
    end_line: 13
`

func TestReviewPublishesPersistentGuide(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "Add bounds check", SourceBranch: "fix/bounds", HeadSHA: "abcdef1234567890"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{reviewYAML}}

	err := Review{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	require.Len(t, p.comments, 1)

	body := p.comments[0].Body
	assert.Contains(t, body, ReviewMarker)
	assert.Contains(t, body, "PR Reviewer Guide")
	assert.Contains(t, body, "🔵🔵🔵⚪⚪")
	assert.Contains(t, body, "src/main.rs")
	assert.Contains(t, body, "No security concerns identified")
	assert.Contains(t, body, "The new bounds check skips the last element")

	assert.Contains(t, p.labels, "Review effort [1-5]: 3")
	assert.NotContains(t, p.labels, "Possible security concern")

	// The temporary "preparing" comment was cleaned up.
	assert.Len(t, p.removed, 1)
}

func TestReviewEditsExistingGuideInPlace(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "Add bounds check", HeadSHA: "abcdef1234567890"},
		files: sampleFiles(),
	}
	p.nextID = 10
	p.comments = []provider.Comment{{ID: 5, Body: "old guide\n" + ReviewMarker}}
	c := &scriptedCompleter{responses: []string{reviewYAML}}

	err := Review{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)

	// Still one guide comment, edited rather than re-posted.
	var guides []provider.Comment
	for _, cm := range p.comments {
		if strings.Contains(cm.Body, ReviewMarker) {
			guides = append(guides, cm)
		}
	}
	require.Len(t, guides, 1)
	assert.Equal(t, int64(5), guides[0].ID)
	assert.Contains(t, guides[0].Body, "Review updated until commit abcdef1")
}

func TestReviewDegradesToRawDumpOnBadYAML(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "x"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{"I think the PR looks mostly fine, nothing structured here."}}

	err := Review{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0].Body, "Could not parse the model output")
	assert.Contains(t, p.comments[0].Body, "nothing structured here")
	assert.Empty(t, p.labels)
}

func TestReviewSkipsEmptyPR(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "empty"}}
	c := &scriptedCompleter{}

	err := Review{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	assert.Zero(t, c.calls)
	assert.Empty(t, p.comments)
}

func TestReviewPrintsWhenPublishingDisabled(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "x"}, files: sampleFiles()}
	c := &scriptedCompleter{responses: []string{reviewYAML}}
	var out strings.Builder

	ctx := testCtx(t, "--config.publish_output=false")
	err := Review{Deps{Provider: p, Completer: c, Out: &out}}.Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, p.comments)
	assert.Contains(t, out.String(), "PR Reviewer Guide")
}

func TestEffortCircles(t *testing.T) {
	assert.Equal(t, "🔵🔵🔵⚪⚪", effortCircles(3))
	assert.Equal(t, "⚪⚪⚪⚪⚪", effortCircles(0))
	assert.Equal(t, "🔵🔵🔵🔵🔵", effortCircles(9))
}

func TestSecurityFlagged(t *testing.T) {
	assert.False(t, securityFlagged("No"))
	assert.False(t, securityFlagged("  none "))
	assert.False(t, securityFlagged(""))
	assert.True(t, securityFlagged("SQL injection in the new query builder"))
}

func TestAskPublishesAnswer(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "x"}, files: sampleFiles()}
	c := &scriptedCompleter{responses: []string{"The loop now covers the final element."}}

	err := Ask{Deps: Deps{Provider: p, Completer: c}, Question: "does the fix cover the last element?"}.Run(testCtx(t))
	require.NoError(t, err)
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0].Body, "does the fix cover the last element?")
	assert.Contains(t, p.comments[0].Body, "The loop now covers the final element.")
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "x"}, files: sampleFiles()}
	err := Ask{Deps: Deps{Provider: p, Completer: &scriptedCompleter{}}, Question: "  "}.Run(testCtx(t))
	require.Error(t, err)
}

func TestAskLineSelectsRange(t *testing.T) {
	files := sampleFiles()
	files[0].HeadContent = "l1\nl2\nl3\nl4\nl5"
	p := &fakeProvider{meta: provider.PRMeta{Title: "x"}, files: files}
	c := &scriptedCompleter{responses: []string{"These lines initialize the buffer."}}

	err := AskLine{
		Deps: Deps{Provider: p, Completer: c}, FilePath: "src/main.rs",
		StartLine: 2, EndLine: 4, Question: "what do these lines do?",
	}.Run(testCtx(t))
	require.NoError(t, err)
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0].Body, "lines 2-4")
}

func TestAskLineUnknownFile(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "x"}, files: sampleFiles()}
	err := AskLine{
		Deps: Deps{Provider: p, Completer: &scriptedCompleter{}},
		FilePath: "nope.go", StartLine: 1, EndLine: 2, Question: "?",
	}.Run(testCtx(t))
	require.Error(t, err)
}

func TestSelectLines(t *testing.T) {
	assert.Equal(t, "b\nc", selectLines("a\nb\nc\nd", 2, 3))
	assert.Equal(t, "c\nd", selectLines("a\nb\nc\nd", 3, 9))
	assert.Equal(t, "", selectLines("a\nb", 5, 6))
}
