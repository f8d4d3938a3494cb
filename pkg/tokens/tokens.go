// Package tokens measures prompt sizes with a BPE encoder and answers
// per-model context-window questions.
package tokens

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// getEncoder returns the shared BPE encoder, initialized once. All models are
// measured with the same fixed encoding; cross-vendor models are approximated.
// Returns nil when no vocabulary could be loaded (the library fetches them on
// first use, which fails without network egress).
func getEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			slog.Warn("BPE encoder unavailable, token counts fall back to a character estimate", "error", err)
			return
		}
		encoder = enc
	})
	return encoder
}

// estimateCharsPerToken is the rough characters-per-token ratio used when no
// encoder is available.
const estimateCharsPerToken = 4

// EstimateTokens approximates the token count of s without an encoder.
func EstimateTokens(s string) int {
	return len(s) / estimateCharsPerToken
}

// CountTokens returns the BPE token count of s, or a character-based estimate
// when the encoder could not be initialized.
func CountTokens(s string) int {
	return countTokens(getEncoder(), s)
}

func countTokens(enc *tiktoken.Tiktoken, s string) int {
	if s == "" {
		return 0
	}
	if enc == nil {
		return EstimateTokens(s)
	}
	return len(enc.Encode(s, nil, nil))
}

// clipSafetyFactor compensates for the characters-per-token estimate being an
// average: shrink the character budget so the clipped text stays under the
// token budget.
const clipSafetyFactor = 0.9

const truncationMarker = "\n...(truncated)"

// ClipTokens shrinks s to fit within maxTokens, truncating on a UTF-8
// character boundary. When addEllipsis is set a truncation marker is appended
// (its own tokens are budgeted for).
func ClipTokens(s string, maxTokens int, addEllipsis bool) string {
	if s == "" || maxTokens < 0 {
		return s
	}
	if maxTokens == 0 {
		return ""
	}

	count := CountTokens(s)
	if count <= maxTokens {
		return s
	}

	budget := maxTokens
	if addEllipsis {
		budget -= CountTokens(truncationMarker)
		if budget <= 0 {
			return ""
		}
	}

	charsPerToken := float64(len(s)) / float64(count)
	numChars := int(float64(budget) * charsPerToken * clipSafetyFactor)
	if numChars >= len(s) {
		numChars = len(s) - 1
	}
	if numChars <= 0 {
		return ""
	}

	for numChars > 0 && !utf8.RuneStart(s[numChars]) {
		numChars--
	}
	clipped := s[:numChars]

	// The estimate can still overshoot on token-dense text; trim until the
	// budget holds.
	for clipped != "" && CountTokens(clipped) > budget {
		cut := len(clipped) - len(clipped)/10 - 1
		for cut > 0 && !utf8.RuneStart(clipped[cut]) {
			cut--
		}
		clipped = clipped[:cut]
	}

	if addEllipsis && clipped != "" {
		clipped += truncationMarker
	}
	return clipped
}

// NormalizeModelName strips provider routing prefixes such as "openai/" or
// "azure/" so table lookups work on the bare model name.
func NormalizeModelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
