//go:build !debug

package ui

import (
	"embed"
	"io/fs"
)

//go:embed dist
var distFS embed.FS

// DistFS returns the embedded console filesystem rooted at ui/.
func DistFS() fs.FS {
	return distFS
}
