// Package artifact persists per-page generated markup and assembles the
// final document from it. Files are the only run state: which artifacts exist
// on disk is what makes a run resumable.
package artifact

import (
	"fmt"
	"regexp"
	"strconv"
)

// Extension is the artifact file extension, final document included.
const Extension = ".tex"

// pageNumberPattern extracts the embedded page index from an artifact file
// name. The index is the authoritative ordering key; directory listing order
// is never trusted.
var pageNumberPattern = regexp.MustCompile(`_page_(\d+)\.tex$`)

// FileName returns the artifact file name for a 0-based page index.
func FileName(stem string, pageIndex int) string {
	return fmt.Sprintf("%s_page_%d%s", stem, pageIndex, Extension)
}

// ParsePageIndex extracts the page index embedded in an artifact file name.
// It reports false when the name does not follow the artifact pattern.
func ParsePageIndex(name string) (int, bool) {
	m := pageNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
