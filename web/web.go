// Package web serves the browser page that subscribes to the /ws stream.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html static
var assets embed.FS

// Handler serves index.html at "/" and the embedded assets under /static/.
func Handler() http.Handler {
	static, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFileFS(w, r, assets, "index.html")
	})
	return mux
}
