package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsentry/prsentry/pkg/provider"
)

const describeYAML = `type:
- Bug fix
title: "Fix off-by-one in bounds check"
description: |
  Extends the loop bound so the final element is checked.
changes_diagram: |
  flowchart LR
    A[main loop] --> B[bounds check]
pr_files:
- filename: src/main.rs
  language: rust
  changes_title: Extend loop bound
  changes_summary: The upper bound now includes the last index
  label: bug fix
`

func TestDescribePreservesOriginalDescription(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "original title", Body: "My description"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{describeYAML}}

	err := Describe{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.NoError(t, err)
	require.True(t, p.updated)

	// generate_ai_title defaults to false.
	assert.Equal(t, "original title", p.title)

	// The author's text sits before the marker and round-trips intact.
	markerIdx := indexOf(t, p.body, DescribeMarker)
	originalIdx := indexOf(t, p.body, "My description")
	assert.Less(t, originalIdx, markerIdx)
	assert.Equal(t, "My description", StripGeneratedContent(p.body))

	assert.Contains(t, p.body, "### **PR Type**")
	assert.Contains(t, p.body, "Bug fix")
	assert.Contains(t, p.body, "Extends the loop bound")
	assert.Contains(t, p.body, "```mermaid")
	assert.Contains(t, p.body, "src/main.rs")
}

func TestDescribeSecondRunDoesNotStackGeneratedContent(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "original title", Body: "My description"},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{describeYAML, describeYAML}}

	require.NoError(t, Describe{Deps{Provider: p, Completer: c}}.Run(testCtx(t)))
	p.meta.Body = p.body

	require.NoError(t, Describe{Deps{Provider: p, Completer: c}}.Run(testCtx(t)))
	assert.Equal(t, "My description", StripGeneratedContent(p.body))
	assert.Equal(t, 1, countOccurrences(p.body, DescribeMarker))
	assert.Equal(t, 1, countOccurrences(p.body, "### **Description**"))
}

func TestDescribeGenerateAITitle(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "wip", Body: ""},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{describeYAML}}

	ctx := testCtx(t, "--pr_description.generate_ai_title=true")
	require.NoError(t, Describe{Deps{Provider: p, Completer: c}}.Run(ctx))
	assert.Equal(t, "Fix off-by-one in bounds check", p.title)
}

func TestDescribePublishLabels(t *testing.T) {
	p := &fakeProvider{
		meta:   provider.PRMeta{Title: "x", Body: ""},
		files:  sampleFiles(),
		labels: []string{"team/backend", "enhancement"},
	}
	c := &scriptedCompleter{responses: []string{describeYAML}}

	ctx := testCtx(t, "--pr_description.publish_labels=true")
	require.NoError(t, Describe{Deps{Provider: p, Completer: c}}.Run(ctx))

	// Custom labels survive; stale type labels are replaced.
	assert.Contains(t, p.labels, "team/backend")
	assert.Contains(t, p.labels, "Bug fix")
	assert.NotContains(t, p.labels, "enhancement")
}

func TestDescribeFailsOnUnparseableOutput(t *testing.T) {
	p := &fakeProvider{
		meta:  provider.PRMeta{Title: "x", Body: ""},
		files: sampleFiles(),
	}
	c := &scriptedCompleter{responses: []string{"no structure whatsoever, just prose about the change"}}

	err := Describe{Deps{Provider: p, Completer: c}}.Run(testCtx(t))
	require.Error(t, err)
	assert.False(t, p.updated)
}

func TestStripGeneratedContent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "marker format",
			body: "My description\n\n" + DescribeMarker + "\n\n### **PR Type**\nBug fix\n",
			want: "My description",
		},
		{
			name: "legacy user description header",
			body: "### **User description**\nOld style text\nwith two lines\n\n___\n\n## **PR Type**\nBug fix\n",
			want: "Old style text\nwith two lines",
		},
		{
			name: "plain body untouched",
			body: "  just a hand-written description  ",
			want: "just a hand-written description",
		},
		{
			name: "empty",
			body: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripGeneratedContent(tt.body))
		})
	}
}

func TestCollapseFileList(t *testing.T) {
	adaptive := testSections(t)
	assert.False(t, collapseFileList(adaptive, 3))
	assert.True(t, collapseFileList(adaptive, 9))
}

func TestSanitizeMermaid(t *testing.T) {
	in := "flowchart LR\n  A[load cfg()] -->|parse (toml)| B[run]\n"
	out := SanitizeMermaid(in)
	assert.Contains(t, out, `A["load cfg()"]`)
	assert.Contains(t, out, `|"parse (toml)"|`)
	assert.Contains(t, out, "B[run]")

	// Already-safe text passes through untouched.
	clean := "flowchart LR\n  A[start] -->|ok| B[end]\n"
	assert.Equal(t, clean, SanitizeMermaid(clean))
}
