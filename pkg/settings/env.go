package settings

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envAliases maps well-known environment variable names to dotted settings
// keys. This is a closed set; everything else goes through the dotted-name
// rule below.
var envAliases = map[string]string{
	"GITHUB_TOKEN":          "github.user_token",
	"GITHUB_BASE_URL":       "github.base_url",
	"GITHUB_WEBHOOK_SECRET": "github.webhook_secret",
	"GITHUB_APP_ID":         "github.app_id",
	"OPENAI_API_KEY":        "openai.key",
	"OPENAI_API_BASE":       "openai.api_base",
}

// envLayer builds the environment settings layer: first the closed alias set,
// then every variable whose name contains a dot, split into section.field and
// interpreted as a TOML-typed value.
func envLayer(environ []string) map[string]any {
	layer := make(map[string]any)
	for _, entry := range environ {
		eq := strings.Index(entry, "=")
		if eq < 0 {
			continue
		}
		name, value := entry[:eq], entry[eq+1:]

		if key, ok := envAliases[name]; ok {
			setDotted(layer, key, parseTOMLValue(value))
			continue
		}
		if strings.Contains(name, ".") {
			setDotted(layer, name, parseTOMLValue(value))
		}
	}
	return layer
}

// LoadDotEnv loads .env.local and .env from the working directory into the
// process environment. Missing files are fine.
func LoadDotEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
