package diff

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prsentry/prsentry/pkg/tokens"
)

const (
	// SoftBuffer is the headroom reserved for the model's completion when
	// deciding whether everything fits in one batch, and the per-file
	// soft-skip threshold during packing.
	SoftBuffer = 1500
	// HardBuffer is the absolute floor: packing stops outright once the
	// accumulated tokens exceed max - HardBuffer.
	HardBuffer = 1000
)

// CompressOptions drive a Compress call.
type CompressOptions struct {
	Model          string
	LineNumbers    bool
	ExtraBefore    int
	ExtraAfter     int
	Filter         FilterOptions
	FallbackTokens int
	CustomMax      int
}

// Result is one emitted batch: the concatenated formatted patches, the token
// total, the files included, and the files deferred to the next batch.
type Result struct {
	Patch         string
	TotalTokens   int
	Files         []FilePatchInfo
	Remaining     []FilePatchInfo
	DeletedFiles  []string
	ModifiedFiles []string
	AddedFiles    []string
}

// prepare filters the input, builds extended+formatted patches, and records
// token counts. Base/head contents are released once the extended patch is
// built.
func prepare(files []FilePatchInfo, opts CompressOptions) []FilePatchInfo {
	files = FilterFiles(files, opts.Filter)

	out := make([]FilePatchInfo, 0, len(files))
	for _, f := range files {
		extended := ExtendPatch(f.BaseContent, f.Patch, opts.ExtraBefore, opts.ExtraAfter)
		f.Patch = strings.TrimSpace(FormatFile(FilePatchInfo{
			Path:     f.Path,
			Patch:    extended,
			EditType: f.EditType,
		}, opts.LineNumbers)) + "\n"
		f.ReleaseContents()
		f.Tokens = tokens.CountTokens(f.Patch)
		out = append(out, f)
	}
	return out
}

// Compress packs the files into a single token-budgeted batch. Files that do
// not fit are returned in Result.Remaining for a follow-up batch.
func Compress(files []FilePatchInfo, opts CompressOptions) Result {
	prepared := prepare(files, opts)
	return packBatch(prepared, opts)
}

// CompressMulti packs up to maxCalls batches, repeating the packing step on
// each spill list. The second return value lists files that still did not fit.
func CompressMulti(files []FilePatchInfo, opts CompressOptions, maxCalls int) ([]Result, []FilePatchInfo) {
	prepared := prepare(files, opts)

	var results []Result
	remaining := prepared
	for call := 0; call < maxCalls && len(remaining) > 0; call++ {
		r := packBatch(remaining, opts)
		if len(r.Files) == 0 {
			break
		}
		results = append(results, r)
		remaining = r.Remaining
	}
	return results, remaining
}

func packBatch(prepared []FilePatchInfo, opts CompressOptions) Result {
	maxModel := tokens.MaxTokensForModel(opts.Model, opts.FallbackTokens, opts.CustomMax)

	// Largest first: big files get priority in the first batch instead of
	// being starved by many small ones.
	sorted := make([]FilePatchInfo, len(prepared))
	copy(sorted, prepared)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tokens > sorted[j].Tokens })

	total := 0
	for _, f := range sorted {
		total += f.Tokens
	}

	if total+SoftBuffer < maxModel {
		var b strings.Builder
		for _, f := range sorted {
			b.WriteString(f.Patch)
			b.WriteString("\n")
		}
		return Result{Patch: strings.TrimSpace(b.String()), TotalTokens: total, Files: sorted}
	}

	var (
		included  []FilePatchInfo
		remaining []FilePatchInfo
		b         strings.Builder
		used      int
	)
	for i, f := range sorted {
		if used > maxModel-HardBuffer {
			// Hard stop: everything not yet assigned spills.
			remaining = append(remaining, sorted[i:]...)
			break
		}
		if used+f.Tokens > maxModel-SoftBuffer {
			// Soft skip: this file goes to the next batch, but smaller files
			// later in the list may still fit.
			slog.Debug("Deferring file to next batch", "path", f.Path, "tokens", f.Tokens)
			remaining = append(remaining, f)
			continue
		}
		b.WriteString(f.Patch)
		b.WriteString("\n")
		used += f.Tokens
		included = append(included, f)
	}

	result := Result{
		Patch:       strings.TrimSpace(b.String()),
		TotalTokens: used,
		Files:       included,
		Remaining:   remaining,
	}
	appendSpillLists(&result, maxModel)
	return result
}

// appendSpillLists adds up to three sections naming the files that did not
// make it into the batch, grouped by edit type, each clipped to whatever
// budget remains.
func appendSpillLists(r *Result, maxModel int) {
	if len(r.Remaining) == 0 {
		return
	}

	var added, modified, deleted []string
	for _, f := range r.Remaining {
		switch f.EditType {
		case EditAdded:
			added = append(added, f.Path)
		case EditDeleted:
			deleted = append(deleted, f.Path)
		default:
			modified = append(modified, f.Path)
		}
	}
	r.AddedFiles = added
	r.ModifiedFiles = modified
	r.DeletedFiles = deleted

	sections := []struct {
		header string
		names  []string
	}{
		{"Additional added files (insufficient token budget to process):", added},
		{"Additional modified files (insufficient token budget to process):", modified},
		{"Additional deleted files (insufficient token budget to process):", deleted},
	}

	patch := r.Patch
	for _, sec := range sections {
		if len(sec.names) == 0 {
			continue
		}
		budget := maxModel - HardBuffer - r.TotalTokens
		if budget <= 0 {
			break
		}
		text := fmt.Sprintf("\n\n## %s\n%s", sec.header, strings.Join(sec.names, "\n"))
		clipped := tokens.ClipTokens(text, budget, true)
		if clipped == "" {
			break
		}
		patch += clipped
		r.TotalTokens += tokens.CountTokens(clipped)
	}
	r.Patch = patch
}
