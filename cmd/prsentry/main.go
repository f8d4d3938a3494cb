// Command prsentry reviews, describes, and improves pull requests from the
// command line, or serves the GitHub webhook endpoint.
//
// Usage:
//
//	prsentry review --pr_url https://github.com/owner/repo/pull/42
//	prsentry improve --pr_url ... -- --pr_code_suggestions.commitable_code_suggestions=true
//	prsentry serve --port 3000
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/prsentry/prsentry/pkg/logger"
	"github.com/prsentry/prsentry/pkg/settings"
)

// CLI defines the command-line interface.
type CLI struct {
	Review   ReviewCmd   `cmd:"" help:"Publish a review guide for a PR."`
	Describe DescribeCmd `cmd:"" help:"Regenerate the PR title and description."`
	Improve  ImproveCmd  `cmd:"" help:"Publish code suggestions for a PR."`
	Ask      AskCmd      `cmd:"" help:"Answer a question about a PR."`
	AskLine  AskLineCmd  `cmd:"" name:"ask_line" help:"Answer a question about specific lines of a PR."`
	Config   ConfigCmd   `cmd:"" help:"Print the resolved configuration."`
	Serve    ServeCmd    `cmd:"" help:"Start the GitHub webhook server."`
	Health   HealthCmd   `cmd:"" help:"Check a running webhook server."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("prsentry version %s\n", version)
	return nil
}

func main() {
	_ = settings.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("prsentry"),
		kong.Description("AI-assisted pull request agent"),
		kong.UsageOnError(),
	)

	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, os.Stderr, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
