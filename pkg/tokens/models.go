package tokens

import "strings"

// ModelCapabilities describe how requests to a model must be shaped.
type ModelCapabilities struct {
	SupportsSystemMessage   bool
	SupportsTemperature     bool
	SupportsImages          bool
	SupportsReasoningEffort bool
	RequiresStreaming       bool
	ReasoningEffort         string
	MaxContextTokens        int
}

// maxTokens maps normalized model names to their context window size.
var maxTokens = map[string]int{
	"gpt-3.5-turbo":     16385,
	"gpt-4":             8192,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-4.1":           1047576,
	"gpt-4.1-mini":      1047576,
	"o1":                204800,
	"o1-mini":           128000,
	"o3":                200000,
	"o3-mini":           204800,
	"o4-mini":           200000,
	"claude-3-5-sonnet": 100000,
	"claude-3-7-sonnet": 200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"gemini-1.5-pro":    1048576,
	"gemini-2.0-flash":  1048576,
	"gemini-2.5-pro":    1048576,
	"deepseek-chat":     128000,
}

// reasoningModels take a reasoning_effort knob and reject temperature and a
// dedicated system role.
var reasoningModels = map[string]bool{
	"o1": true, "o1-mini": true, "o3": true, "o3-mini": true, "o4-mini": true,
}

// userMessageOnlyModels accept no system role; system text is prepended to the
// user message instead.
var userMessageOnlyModels = map[string]bool{
	"o1-mini": true, "o1-preview": true,
}

// visionModels accept image content parts.
var visionModels = map[string]bool{
	"gpt-4o": true, "gpt-4o-mini": true, "gpt-4-turbo": true,
	"gpt-4.1": true, "gpt-4.1-mini": true,
	"claude-3-5-sonnet": true, "claude-3-7-sonnet": true,
	"claude-sonnet-4": true, "claude-opus-4": true,
	"gemini-1.5-pro": true, "gemini-2.0-flash": true, "gemini-2.5-pro": true,
}

// lookup matches the normalized name exactly, then by prefix (dated snapshot
// names such as gpt-4o-2024-08-06 resolve to their family).
func lookup[V any](table map[string]V, model string) (V, bool) {
	if v, ok := table[model]; ok {
		return v, true
	}
	best := ""
	for name := range table {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return table[best], true
	}
	var zero V
	return zero, false
}

// MaxTokensForModel returns the context window for a model, or fallback when
// the model is unknown. A positive customMax wins over the table.
func MaxTokensForModel(model string, fallback, customMax int) int {
	if customMax > 0 {
		return customMax
	}
	if size, ok := lookup(maxTokens, NormalizeModelName(model)); ok {
		return size
	}
	return fallback
}

// Capabilities returns the capability set for a model. Unknown models get the
// permissive defaults of a modern chat model.
func Capabilities(model string) ModelCapabilities {
	name := NormalizeModelName(model)

	caps := ModelCapabilities{
		SupportsSystemMessage: true,
		SupportsTemperature:   true,
	}
	if _, ok := lookup(reasoningModels, name); ok {
		caps.SupportsTemperature = false
		caps.SupportsReasoningEffort = true
	}
	if _, ok := lookup(userMessageOnlyModels, name); ok {
		caps.SupportsSystemMessage = false
	}
	if _, ok := lookup(visionModels, name); ok {
		caps.SupportsImages = true
	}
	if size, ok := lookup(maxTokens, name); ok {
		caps.MaxContextTokens = size
	}
	return caps
}
