package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsentry/prsentry/pkg/diff"
	"github.com/prsentry/prsentry/pkg/provider"
)

const suggestionsYAML = `code_suggestions:
- relevant_file: src/main.rs
  language: rust
  suggestion_content: Guard the index before dereferencing to avoid a panic on empty input.
  existing_code: |
    let v = items[i];
  improved_code: |
    let Some(v) = items.get(i) else { return };
  one_sentence_summary: Guard the index access
  relevant_lines_start: 11
  relevant_lines_end: 12
  label: possible issue
- relevant_file: src/main.rs
  language: rust
  suggestion_content: Split the parsing logic into its own module to keep main small.
  existing_code: ""
  improved_code: ""
  one_sentence_summary: Split parsing into a module
  relevant_lines_start: -1
  relevant_lines_end: -1
  label: enhancement
`

const reflectYAML = `code_suggestions:
- suggestion_summary: Guard the index access
  relevant_file: src/main.rs
  relevant_lines_start: 11
  relevant_lines_end: 12
  suggestion_score: 8
  why: Prevents a runtime panic on the empty-input path.
- suggestion_summary: Split parsing into a module
  relevant_file: src/main.rs
  relevant_lines_start: -1
  relevant_lines_end: -1
  suggestion_score: 7
  why: Structural improvement only.
`

func TestImprovePublishesSummaryTable(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "Add bounds check", HeadSHA: "abcdef1234567890"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{suggestionsYAML, reflectYAML}}

	err := Improve{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	require.Len(t, p.comments, 1)

	body := p.comments[0].Body
	assert.Contains(t, body, ImproveMarker)
	assert.Contains(t, body, "PR Code Suggestions")
	assert.Contains(t, body, "Guard the index access")

	// The line-less suggestion lands in the architecture section, not the table.
	assert.Contains(t, body, "Architecture & Design")
	assert.Contains(t, body, "Split parsing into a module")

	// Table rows link back to the PR diff.
	assert.Contains(t, body, "src/main.rs")

	// commitable_code_suggestions defaults off.
	assert.Empty(t, p.suggestions)

	// Both passes ran: suggestion + reflect.
	assert.Equal(t, 2, c.calls)
}

func TestImproveInvalidLinesForceScoreZero(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "x"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{suggestionsYAML, reflectYAML}}

	// The second suggestion has lines -1/-1 and would score 7; the invalid
	// lines force it to 0, so a threshold of 5 drops it.
	ctx := testCtx(t, "--pr_code_suggestions.suggestions_score_threshold=5")
	err := Improve{Deps{Provider: p, Completer: c}}.Run(ctx)
	require.NoError(t, err)
	require.Len(t, p.comments, 1)

	body := p.comments[0].Body
	assert.Contains(t, body, "Guard the index access")
	assert.NotContains(t, body, "Split parsing into a module")
}

func TestImproveCommittableMode(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "x"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{suggestionsYAML, reflectYAML}}

	ctx := testCtx(t, "--pr_code_suggestions.commitable_code_suggestions=true")
	err := Improve{Deps{Provider: p, Completer: c}}.Run(ctx)
	require.NoError(t, err)

	// Only the line-anchored suggestion becomes a committable block.
	require.Len(t, p.suggestions, 1)
	s := p.suggestions[0]
	assert.Equal(t, "src/main.rs", s.Path)
	assert.Equal(t, 11, s.StartLine)
	assert.Equal(t, 12, s.EndLine)
	assert.Contains(t, s.Body, "```suggestion")
	assert.Contains(t, s.Body, "items.get(i)")
}

func TestImproveCommittableFallsBackToTable(t *testing.T) {
	p := &fakeProvider{
		meta:       provider.PRMeta{Title: "x"},
		files:      sampleFiles(),
		suggestErr: assert.AnError,
	}
	c := &scriptedCompleter{responses: []string{suggestionsYAML, reflectYAML}}

	ctx := testCtx(t, "--pr_code_suggestions.commitable_code_suggestions=true")
	err := Improve{Deps{Provider: p, Completer: c}}.Run(ctx)
	require.NoError(t, err)
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0].Body, "PR Code Suggestions")
}

// twoBatchFiles builds two files large enough that a 5100-token context
// splits them into separate batches.
func twoBatchFiles() []diff.FilePatchInfo {
	mk := func(path string) diff.FilePatchInfo {
		var b strings.Builder
		b.WriteString("@@ -1,0 +1,300 @@\n")
		for i := 0; i < 300; i++ {
			b.WriteString("+some new line of code here\n")
		}
		return diff.FilePatchInfo{Path: path, Patch: b.String(), EditType: diff.EditModified, NumPlus: 300}
	}
	return []diff.FilePatchInfo{mk("src/alpha.rs"), mk("src/beta.rs")}
}

func TestImproveBatchFailureKeepsOtherBatches(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "x"},
		files: twoBatchFiles(),
	}
	// The first batch's suggestion call fails outright; the second batch
	// completes both passes.
	c := &scriptedCompleter{responses: []string{suggestionsYAML, reflectYAML}, errOn: 1}

	ctx := testCtx(t,
		"--pr_code_suggestions.max_context_tokens=5100",
		"--pr_code_suggestions.parallel_calls=false",
		"--config.fallback_models=[]",
	)
	err := Improve{Deps{Provider: p, Completer: c}}.Run(ctx)
	require.NoError(t, err)

	// The failed batch is dropped; the surviving batch still publishes.
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0].Body, "Guard the index access")
	assert.Equal(t, 3, c.calls)
}

func TestImproveSkipsEmptyPR(t *testing.T) {
	p := &fakeProvider{meta: provider.PRMeta{Title: "empty"}}
	c := &scriptedCompleter{}

	err := Improve{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	assert.Zero(t, c.calls)
	assert.Empty(t, p.comments)
}

func TestFilterAndSort(t *testing.T) {
	ss := []suggestion{
		{Summary: "low", Score: 2},
		{Summary: "high", Score: 9},
		{Summary: "mid", Score: 5},
	}
	got := filterAndSort(ss, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Summary)
	assert.Equal(t, "mid", got[1].Summary)
}

func TestHighScoring(t *testing.T) {
	ss := []suggestion{
		{Summary: "anchored", Score: 9, Start: 5, End: 7},
		{Summary: "unanchored", Score: 9},
		{Summary: "weak", Score: 3, Start: 5, End: 7},
	}
	got := highScoring(ss, 7)
	require.Len(t, got, 1)
	assert.Equal(t, "anchored", got[0].Summary)
}

func TestSelfReviewBlock(t *testing.T) {
	base := testSections(t)
	assert.Empty(t, selfReviewBlock(base))

	demand := conf(testCtx(t, "--pr_code_suggestions.demand_code_suggestions_self_review=true"))
	block := selfReviewBlock(demand)
	assert.Contains(t, block, "- [ ] I reviewed the suggestions")
	// fold_suggestions_on_self_review defaults true, approve defaults false.
	assert.Contains(t, block, SelfReviewFoldMarker)
	assert.NotContains(t, block, SelfReviewApproveFoldMarker)

	both := conf(testCtx(t,
		"--pr_code_suggestions.demand_code_suggestions_self_review=true",
		"--pr_code_suggestions.approve_pr_on_self_review=true"))
	assert.Contains(t, selfReviewBlock(both), SelfReviewApproveFoldMarker)
}

func TestToCodeSuggestionsSkipsIncomplete(t *testing.T) {
	ss := []suggestion{
		{File: "a.go", Improved: "x := 1", Start: 3, End: 3},
		{File: "b.go", Improved: "", Start: 3, End: 3},
		{File: "c.go", Improved: "y := 2", Start: 0, End: 0},
	}
	got := toCodeSuggestions(ss)
	require.Len(t, got, 1)
	assert.Equal(t, "a.go", got[0].Path)
}

func TestImpactWord(t *testing.T) {
	assert.Equal(t, "High", impactWord(9))
	assert.Equal(t, "Medium", impactWord(7))
	assert.Equal(t, "Low", impactWord(2))
	assert.Equal(t, "", impactWord(0))
}

func TestFormatSuggestionsTableEmpty(t *testing.T) {
	p := &fakeProvider{}
	body := formatSuggestionsTable(nil, p)
	assert.Contains(t, body, "No code suggestions found")
	assert.False(t, strings.Contains(body, "<table>"))
}
