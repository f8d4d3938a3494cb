package githubprov

import (
	"crypto/sha256"
	"fmt"
)

// fileAnchor is the fragment prefix GitHub assigns each file in the Files
// tab: "diff-" plus the hex SHA-256 of the file path.
func fileAnchor(path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("diff-%x", sum)
}
