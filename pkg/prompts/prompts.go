// Package prompts renders the system and user prompts for each tool from
// embedded templates. Rendering is strict: a template that references a
// variable absent from the data map fails instead of emitting "<no value>".
// Variable values are substituted verbatim and never re-parsed as template
// syntax, so untrusted PR content cannot inject template directives.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/prsentry/prsentry/pkg/errs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Prompt is a rendered system+user pair ready for a chat completion.
type Prompt struct {
	System string
	User   string
}

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

func templates() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("prompts").
			Option("missingkey=error").
			ParseFS(templateFS, "templates/*.tmpl")
	})
	return parsed, parseErr
}

// Render evaluates the <name>_system and <name>_user templates with vars.
// Known names: review, describe, improve, improve_reflect, ask, ask_line.
func Render(name string, vars map[string]any) (Prompt, error) {
	t, err := templates()
	if err != nil {
		return Prompt{}, errs.Wrap(errs.KindTemplate, "parsing prompt templates", err)
	}

	system, err := execute(t, name+"_system.tmpl", vars)
	if err != nil {
		return Prompt{}, err
	}
	user, err := execute(t, name+"_user.tmpl", vars)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

func execute(t *template.Template, name string, vars map[string]any) (string, error) {
	sub := t.Lookup(name)
	if sub == nil {
		return "", errs.Newf(errs.KindTemplate, "unknown prompt template %q", name)
	}
	var b strings.Builder
	if err := sub.Execute(&b, vars); err != nil {
		return "", errs.Wrap(errs.KindTemplate, fmt.Sprintf("rendering %s", name), err)
	}
	return b.String(), nil
}
