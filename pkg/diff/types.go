// Package diff models per-file patches and packs them into token-budgeted
// batches that fit a model's context window.
package diff

// EditType classifies how a file changed in the PR.
type EditType int

const (
	EditUnknown EditType = iota
	EditAdded
	EditDeleted
	EditModified
	EditRenamed
)

func (e EditType) String() string {
	switch e {
	case EditAdded:
		return "added"
	case EditDeleted:
		return "deleted"
	case EditModified:
		return "modified"
	case EditRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FilePatchInfo is one changed file. A deleted file has empty head content;
// an added file has empty base content; a renamed file carries PrevPath.
type FilePatchInfo struct {
	BaseContent string
	HeadContent string
	Patch       string
	Path        string
	PrevPath    string
	EditType    EditType
	NumPlus     int
	NumMinus    int
	Tokens      int
}

// ReleaseContents drops the base and head file bodies once the extended patch
// has been built; only the patch is needed from here on.
func (f *FilePatchInfo) ReleaseContents() {
	f.BaseContent = ""
	f.HeadContent = ""
}
