package server

import (
	"embed"
	"io/fs"
	"net/http"
)

// The chat page is a single static file that talks to /api and /ws.
//
//go:embed static
var embeddedAssets embed.FS

func assetHandler() http.Handler {
	sub, err := fs.Sub(embeddedAssets, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
