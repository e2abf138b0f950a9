package main

import (
	"embed"
	"io/fs"

	"github.com/lazypower/fungimap/internal/server"
)

// The ui directory holds the bubble renderer; a build may replace it with a
// bundled frontend.
//
//go:embed all:ui
var uiDist embed.FS

func init() {
	sub, err := fs.Sub(uiDist, "ui")
	if err != nil {
		return
	}
	server.SetUI(sub)
}
