// Package web embeds the dashboard assets.
// The dashboard is a single static page that draws the activity bars
// returned by the run API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// Assets returns the embedded dashboard filesystem.
// The returned FS has dist/ as its root, so files are accessed
// directly (e.g., "index.html" not "dist/index.html").
func Assets() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
