package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/prsentry/prsentry/pkg/errs"
	"github.com/prsentry/prsentry/pkg/githubprov"
	"github.com/prsentry/prsentry/pkg/giturl"
	"github.com/prsentry/prsentry/pkg/llm"
	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/server"
	"github.com/prsentry/prsentry/pkg/settings"
	"github.com/prsentry/prsentry/pkg/tools"
)

// prArgs are the flags shared by every PR-bound command. Free-form settings
// overrides come after "--" and go through the same forbidden-key check as
// comment-provided arguments.
type prArgs struct {
	PRURL     string   `name:"pr_url" help:"Pull request URL." required:""`
	Overrides []string `arg:"" optional:"" passthrough:"" help:"Settings overrides (--section.key=value)."`
}

type pipeline interface {
	Run(ctx context.Context) error
}

// ReviewCmd publishes the review guide.
type ReviewCmd struct{ prArgs }

func (c *ReviewCmd) Run() error {
	return runPipeline(c.prArgs, func(d tools.Deps) pipeline { return tools.Review{Deps: d} })
}

// DescribeCmd regenerates the PR title and description.
type DescribeCmd struct{ prArgs }

func (c *DescribeCmd) Run() error {
	return runPipeline(c.prArgs, func(d tools.Deps) pipeline { return tools.Describe{Deps: d} })
}

// ImproveCmd publishes code suggestions.
type ImproveCmd struct{ prArgs }

func (c *ImproveCmd) Run() error {
	return runPipeline(c.prArgs, func(d tools.Deps) pipeline { return tools.Improve{Deps: d} })
}

// AskCmd answers a free-form question about the PR.
type AskCmd struct {
	prArgs
	Question string `help:"Question to answer." required:""`
}

func (c *AskCmd) Run() error {
	return runPipeline(c.prArgs, func(d tools.Deps) pipeline {
		return tools.Ask{Deps: d, Question: c.Question}
	})
}

// AskLineCmd answers a question about a line range of one changed file.
type AskLineCmd struct {
	prArgs
	FilePath  string `name:"file_path" help:"Path of the changed file." required:""`
	StartLine int    `name:"start_line" help:"First selected line (1-based)." required:""`
	EndLine   int    `name:"end_line" help:"Last selected line (inclusive)." required:""`
	Question  string `help:"Question to answer." required:""`
}

func (c *AskLineCmd) Run() error {
	return runPipeline(c.prArgs, func(d tools.Deps) pipeline {
		return tools.AskLine{
			Deps: d, FilePath: c.FilePath,
			StartLine: c.StartLine, EndLine: c.EndLine, Question: c.Question,
		}
	})
}

// ConfigCmd prints the resolved configuration with secrets redacted, or the
// JSON schema of all known settings.
type ConfigCmd struct {
	Schema    bool     `help:"Print the JSON schema of all settings instead."`
	Overrides []string `arg:"" optional:"" passthrough:"" help:"Settings overrides (--section.key=value)."`
}

func (c *ConfigCmd) Run() error {
	if c.Schema {
		data, err := settings.Schema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	s, err := settings.Resolve(settings.ResolveOptions{CLIOverrides: c.Overrides})
	if err != nil {
		return err
	}
	data, err := toml.Marshal(s.Redacted())
	if err != nil {
		return errs.Wrap(errs.KindTOML, "could not render configuration", err)
	}
	fmt.Println(string(data))
	return nil
}

// ServeCmd runs the webhook server until interrupted.
type ServeCmd struct {
	Host string `help:"Bind address." default:"0.0.0.0"`
	Port int    `help:"Listen port." env:"PORT" default:"3000"`
}

func (c *ServeCmd) Run() error {
	s, err := settings.Resolve(settings.ResolveOptions{})
	if err != nil {
		return err
	}
	settings.SetAmbient(s)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reload the ambient snapshot when a local secrets file changes.
	go func() {
		if err := settings.Watch(ctx, settings.ResolveOptions{}); err != nil {
			slog.Warn("Settings watcher stopped", "error", err)
		}
	}()

	srv, err := server.New(server.Options{
		Host:        c.Host,
		Port:        c.Port,
		Runner:      appRunner{},
		NewProvider: newProvider,
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// HealthCmd probes a locally running webhook server.
type HealthCmd struct {
	Port int `help:"Port the server listens on." env:"PORT" default:"3000"`
}

func (c *HealthCmd) Run() error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/", c.Port))
	if err != nil {
		return errs.Wrap(errs.KindHTTP, "webhook server is not reachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.KindHTTP, "webhook server returned status %d", resp.StatusCode)
	}
	fmt.Println("ok")
	return nil
}

// runPipeline resolves settings (including trailing overrides), binds a
// provider and model client to the PR, overlays the repo-level settings, and
// runs the tool.
func runPipeline(args prArgs, build func(tools.Deps) pipeline) error {
	s, err := settings.Resolve(settings.ResolveOptions{CLIOverrides: args.Overrides})
	if err != nil {
		return err
	}
	settings.SetAmbient(s)

	ctx := context.Background()
	prov, err := newProvider(ctx, args.PRURL)
	if err != nil {
		return err
	}
	ctx = overlayScopedSettings(ctx, prov, s)

	deps := tools.Deps{Provider: prov, Completer: newCompleter(settings.FromContext(ctx).Sections())}
	return build(deps).Run(ctx)
}

// newProvider builds a GitHub provider bound to the PR at the given URL.
func newProvider(ctx context.Context, prURL string) (provider.Provider, error) {
	parsed, err := giturl.Parse(prURL)
	if err != nil {
		return nil, err
	}
	if parsed.IsIssue {
		return nil, errs.Newf(errs.KindConfig, "%q is an issue URL, expected a pull request", prURL)
	}

	cfg := settings.FromContext(ctx).Sections()
	var app *githubprov.AppAuth
	if cfg.GitHub.AppID != 0 && cfg.GitHub.PrivateKey != "" {
		app = &githubprov.AppAuth{
			AppID:      strconv.FormatInt(cfg.GitHub.AppID, 10),
			PrivateKey: []byte(cfg.GitHub.PrivateKey),
		}
	}
	return githubprov.New(ctx, githubprov.Config{
		Owner:            parsed.Owner,
		Repo:             parsed.Repo,
		Number:           parsed.Number,
		Token:            cfg.GitHub.UserToken,
		App:              app,
		BaseURL:          cfg.GitHub.BaseURL,
		RateLimitRetries: cfg.GitHub.RatelimitRetries,
		MaxCommentChars:  cfg.GitHub.MaxCommentChars,
	})
}

func newCompleter(cfg *settings.Sections) *llm.Client {
	opts := []llm.Option{
		llm.WithBaseURL(cfg.OpenAI.APIBase),
		llm.WithSeed(cfg.Config.Seed),
	}
	if cfg.Config.AITimeout > 0 {
		opts = append(opts, llm.WithTimeout(time.Duration(cfg.Config.AITimeout)*time.Second))
	}
	return llm.New(cfg.OpenAI.Key, opts...)
}

// overlayScopedSettings merges the org- and repo-level .pr_agent.toml files
// over the base snapshot for this invocation.
func overlayScopedSettings(ctx context.Context, prov provider.Provider, base *settings.Settings) context.Context {
	scoped := base
	for _, fetch := range []func(context.Context) ([]byte, error){prov.GetOrgSettings, prov.GetRepoSettings} {
		data, err := fetch(ctx)
		if err != nil || data == nil {
			continue
		}
		layer, err := settings.ParseTOMLLayer(data)
		if err != nil {
			slog.Warn("Ignoring malformed repository settings", "error", err)
			continue
		}
		next, err := scoped.With(layer)
		if err != nil {
			slog.Warn("Ignoring unusable repository settings", "error", err)
			continue
		}
		scoped = next
	}
	return settings.WithScoped(ctx, scoped)
}

// appRunner executes webhook-dispatched commands. The arguments that follow
// the command in the comment become settings overrides, except for /ask,
// where they form the question.
type appRunner struct{}

func (appRunner) Run(ctx context.Context, prURL, command string, args []string) error {
	base := settings.FromContext(ctx)

	var question string
	if command == "ask" {
		question = strings.Join(args, " ")
		args = nil
	}
	if len(args) > 0 {
		layer, err := settings.ParseCLIOverrides(args)
		if err != nil {
			return err
		}
		scoped, err := base.With(layer)
		if err != nil {
			return err
		}
		ctx = settings.WithScoped(ctx, scoped)
	}

	prov, err := newProvider(ctx, prURL)
	if err != nil {
		return err
	}
	deps := tools.Deps{Provider: prov, Completer: newCompleter(settings.FromContext(ctx).Sections())}

	switch command {
	case "review":
		return tools.Review{Deps: deps}.Run(ctx)
	case "describe":
		return tools.Describe{Deps: deps}.Run(ctx)
	case "improve":
		return tools.Improve{Deps: deps}.Run(ctx)
	case "ask":
		return tools.Ask{Deps: deps, Question: question}.Run(ctx)
	case "help":
		_, err := prov.PublishComment(ctx, helpBody, false)
		return err
	default:
		return errs.Newf(errs.KindUnsupported, "unknown command %q", command)
	}
}

const helpBody = `### Available commands

- ` + "`/review`" + ` — publish a review guide for this PR
- ` + "`/describe`" + ` — regenerate the PR title and description
- ` + "`/improve`" + ` — publish code suggestions
- ` + "`/ask <question>`" + ` — answer a question about this PR

Any command accepts trailing settings overrides, e.g. ` + "`/review --pr_reviewer.extra_instructions=\"focus on error handling\"`" + `.`

var _ server.CommandRunner = appRunner{}
