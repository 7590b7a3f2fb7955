package normalize

import (
	"path/filepath"
	"strings"
)

// FileExtension returns the lower-cased extension of filename without the dot,
// or "" when there is none.
func FileExtension(filename string) string {
	ext := filepath.Ext(strings.TrimSpace(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
