//go:build debug

package ui

import (
	"io/fs"
	"os"
)

// DistFS returns a live filesystem rooted at ui/ so edits to dist/ show up
// without recompiling.
func DistFS() fs.FS {
	return os.DirFS("ui")
}
