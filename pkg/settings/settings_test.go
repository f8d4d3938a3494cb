package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveWith(t *testing.T, opts ResolveOptions) *Settings {
	t.Helper()
	if opts.SecretsFiles == nil {
		opts.SecretsFiles = []string{}
	}
	if opts.Environ == nil {
		opts.Environ = []string{}
	}
	s, err := Resolve(opts)
	require.NoError(t, err)
	return s
}

func TestDefaultsDecode(t *testing.T) {
	s := resolveWith(t, ResolveOptions{})

	assert.Equal(t, "gpt-4o", s.Sections().Config.Model)
	assert.Equal(t, "github", s.Sections().Config.GitProvider)
	assert.True(t, s.Sections().Reviewer.PersistentComment)
	assert.Equal(t, 3, s.Sections().Reviewer.NumMaxFindings)
	assert.True(t, s.Sections().Describer.CollapsibleFileList.Is("adaptive"))
}

func TestForbiddenOverrideRejected(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"full_dotted_name", "--openai.key=sk-xxx"},
		{"segment_match", "--github.user_token=ghp_xxx"},
		{"nested_segment", "--some.section.webhook_secret=boo"},
		{"base_url", "--github.base_url=https://evil.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCLIOverrides([]string{tt.token})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "forbidden")
		})
	}
}

func TestForbiddenOverrideNamesKey(t *testing.T) {
	_, err := ParseCLIOverrides([]string{"--openai.key=sk-xxx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key")
}

func TestLayeredOverridePrecedence(t *testing.T) {
	s := resolveWith(t, ResolveOptions{})

	org, err := ParseTOMLLayer([]byte("[pr_reviewer]\nnum_max_findings = 20\nextra_instructions = \"org\"\n"))
	require.NoError(t, err)
	s, err = s.With(org)
	require.NoError(t, err)

	repo, err := ParseTOMLLayer([]byte("[pr_reviewer]\nnum_max_findings = 5\n"))
	require.NoError(t, err)
	s, err = s.With(repo)
	require.NoError(t, err)

	cli, err := ParseCLIOverrides([]string{"--pr_reviewer.num_max_findings=99"})
	require.NoError(t, err)
	s, err = s.With(cli)
	require.NoError(t, err)

	assert.Equal(t, 99, s.Sections().Reviewer.NumMaxFindings)
	assert.Equal(t, "org", s.Sections().Reviewer.ExtraInstructions)
}

func TestDoubleUnderscoreOverride(t *testing.T) {
	layer, err := ParseCLIOverrides([]string{"--pr_reviewer__num_max_findings=7"})
	require.NoError(t, err)

	s, err := resolveWith(t, ResolveOptions{}).With(layer)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Sections().Reviewer.NumMaxFindings)
}

func TestOverrideTyping(t *testing.T) {
	tests := []struct {
		name  string
		token string
		key   string
		want  any
	}{
		{"bool", "--config.publish_output=false", "config.publish_output", false},
		{"int", "--config.ai_timeout=33", "config.ai_timeout", int64(33)},
		{"float", "--config.temperature=0.7", "config.temperature", 0.7},
		{"string", "--pr_reviewer.extra_instructions=be nice", "pr_reviewer.extra_instructions", "be nice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, err := ParseCLIOverrides([]string{tt.token})
			require.NoError(t, err)
			s, err := resolveWith(t, ResolveOptions{}).With(layer)
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, s.Get(tt.key))
		})
	}
}

func TestEnvAliases(t *testing.T) {
	s := resolveWith(t, ResolveOptions{
		Environ: []string{"GITHUB_TOKEN=ghp_abc", "OPENAI_API_KEY=sk-123"},
	})

	assert.Equal(t, "ghp_abc", s.Sections().GitHub.UserToken)
	assert.Equal(t, "sk-123", s.Sections().OpenAI.Key)
}

func TestEnvDottedNames(t *testing.T) {
	s := resolveWith(t, ResolveOptions{
		Environ: []string{
			"config.model=o3-mini",
			"pr_reviewer.num_max_findings=11",
		},
	})

	assert.Equal(t, "o3-mini", s.Sections().Config.Model)
	assert.Equal(t, 11, s.Sections().Reviewer.NumMaxFindings)
}

func TestEnvArrayQuotingVariants(t *testing.T) {
	// Container runtimes mangle quoting; all three forms must parse the same.
	tests := []struct {
		name string
		raw  string
	}{
		{"double_quoted", `config.fallback_models=["x"]`},
		{"single_quoted", `config.fallback_models=['x']`},
		{"escaped_single", `config.fallback_models=[\'x\']`},
		{"escaped_double", `config.fallback_models=[\"x\"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := resolveWith(t, ResolveOptions{Environ: []string{tt.raw}})
			assert.Equal(t, []string{"x"}, s.Sections().Config.FallbackModels)
		})
	}
}

func TestSecretsFileLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.toml")
	require.NoError(t, os.WriteFile(path, []byte("[github]\nuser_token = \"ghp_file\"\n"), 0600))

	s := resolveWith(t, ResolveOptions{SecretsFiles: []string{path}})
	assert.Equal(t, "ghp_file", s.Sections().GitHub.UserToken)
}

func TestMissingSecretsFileSkipped(t *testing.T) {
	s := resolveWith(t, ResolveOptions{SecretsFiles: []string{"/nonexistent/.secrets.toml"}})
	assert.Equal(t, "gpt-4o", s.Sections().Config.Model)
}

func TestRedaction(t *testing.T) {
	s := resolveWith(t, ResolveOptions{
		Environ: []string{"GITHUB_TOKEN=ghp_abc", "GITHUB_WEBHOOK_SECRET=shh"},
	})

	redacted := s.Redacted()
	github := redacted["github"].(map[string]any)
	assert.Equal(t, "***", github["user_token"])
	assert.Equal(t, "***", github["webhook_secret"])
	// Non-secret values pass through.
	config := redacted["config"].(map[string]any)
	assert.Equal(t, "gpt-4o", config["model"])
}

func TestScopedSnapshot(t *testing.T) {
	base := resolveWith(t, ResolveOptions{})
	SetAmbient(base)

	layer, err := ParseTOMLLayer([]byte("[config]\nmodel = \"scoped-model\"\n"))
	require.NoError(t, err)
	scoped, err := base.With(layer)
	require.NoError(t, err)

	ctx := WithScoped(context.Background(), scoped)
	assert.Equal(t, "scoped-model", FromContext(ctx).Sections().Config.Model)

	// Other contexts still see the ambient snapshot.
	assert.Equal(t, "gpt-4o", FromContext(context.Background()).Sections().Config.Model)
}

func TestDynamicBool(t *testing.T) {
	layer, err := ParseTOMLLayer([]byte("[pr_description]\ncollapsible_file_list = true\n"))
	require.NoError(t, err)
	s, err := resolveWith(t, ResolveOptions{}).With(layer)
	require.NoError(t, err)

	assert.True(t, s.Sections().Describer.CollapsibleFileList.True())
	assert.False(t, s.Sections().Describer.CollapsibleFileList.Is("adaptive"))
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base := resolveWith(t, ResolveOptions{})
	layer, err := ParseTOMLLayer([]byte("[config]\nmodel = \"other\"\n"))
	require.NoError(t, err)

	derived, err := base.With(layer)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", base.Sections().Config.Model)
	assert.Equal(t, "other", derived.Sections().Config.Model)
}
