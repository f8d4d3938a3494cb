package main

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCLI(t *testing.T, args ...string) *CLI {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli)
	require.NoError(t, err)
	_, err = parser.Parse(args)
	require.NoError(t, err)
	return cli
}

func TestServePortDefaults(t *testing.T) {
	cli := parseCLI(t, "serve")
	assert.Equal(t, 3000, cli.Serve.Port)
	assert.Equal(t, "0.0.0.0", cli.Serve.Host)
}

func TestServePortFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	cli := parseCLI(t, "serve")
	assert.Equal(t, 8080, cli.Serve.Port)

	// An explicit flag still wins over the environment.
	cli = parseCLI(t, "serve", "--port=9000")
	assert.Equal(t, 9000, cli.Serve.Port)
}

func TestHealthPortFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	cli := parseCLI(t, "health")
	assert.Equal(t, 8080, cli.Health.Port)
}
