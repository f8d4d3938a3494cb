package diff

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// binaryExtensions are never worth sending to a model.
var binaryExtensions = map[string]bool{
	".7z": true, ".avi": true, ".bin": true, ".bmp": true, ".bz2": true,
	".class": true, ".dat": true, ".dll": true, ".dylib": true, ".eot": true,
	".exe": true, ".gif": true, ".gz": true, ".ico": true, ".jar": true,
	".jpeg": true, ".jpg": true, ".lz": true, ".mp3": true, ".mp4": true,
	".o": true, ".obj": true, ".ogg": true, ".otf": true, ".pdf": true,
	".png": true, ".pyc": true, ".rar": true, ".so": true, ".svgz": true,
	".tar": true, ".tiff": true, ".ttf": true, ".wav": true, ".webm": true,
	".webp": true, ".woff": true, ".woff2": true, ".xz": true, ".zip": true,
	".zst": true,
}

var (
	regexCacheMu sync.RWMutex
	regexCache   = map[string]*regexp.Regexp{}

	globCacheMu sync.RWMutex
	globCache   = map[string]glob.Glob{}
)

// compileRegex returns a cached compiled regex, or nil when the pattern is
// invalid (logged once per compile attempt, then treated as non-matching).
func compileRegex(pattern string) *regexp.Regexp {
	regexCacheMu.RLock()
	re, ok := regexCache[pattern]
	regexCacheMu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("Invalid ignore regex", "pattern", pattern, "error", err)
		re = nil
	}
	regexCacheMu.Lock()
	regexCache[pattern] = re
	regexCacheMu.Unlock()
	return re
}

func compileGlob(pattern string) glob.Glob {
	globCacheMu.RLock()
	g, ok := globCache[pattern]
	globCacheMu.RUnlock()
	if ok {
		return g
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		slog.Warn("Invalid ignore glob", "pattern", pattern, "error", err)
		g = nil
	}
	globCacheMu.Lock()
	globCache[pattern] = g
	globCacheMu.Unlock()
	return g
}

// FilterOptions carry the user-supplied ignore lists.
type FilterOptions struct {
	IgnoreGlobs   []string
	IgnoreRegexes []string
}

// FilterFiles drops binary files and files matching any ignore glob or regex.
// Filtering is idempotent: a filtered sequence passes through unchanged.
func FilterFiles(files []FilePatchInfo, opts FilterOptions) []FilePatchInfo {
	out := make([]FilePatchInfo, 0, len(files))
	for _, f := range files {
		if shouldIgnore(f.Path, opts) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func shouldIgnore(path string, opts FilterOptions) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	for _, pattern := range opts.IgnoreGlobs {
		if matchGlob(pattern, path) {
			return true
		}
	}
	for _, pattern := range opts.IgnoreRegexes {
		if re := compileRegex(pattern); re != nil && re.MatchString(path) {
			return true
		}
	}
	return false
}

// matchGlob matches path against pattern; a leading **/ also matches the
// root-level equivalent (so "**/vendor/*" covers "vendor/x" too).
func matchGlob(pattern, path string) bool {
	if g := compileGlob(pattern); g != nil && g.Match(path) {
		return true
	}
	if stripped, ok := strings.CutPrefix(pattern, "**/"); ok {
		if g := compileGlob(stripped); g != nil && g.Match(path) {
			return true
		}
	}
	return false
}
