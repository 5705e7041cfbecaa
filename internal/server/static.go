package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// spaHandler serves files from dir. Unknown paths without an extension fall
// back to index.html so client-side routes resolve. os.Root confines every
// lookup to dir, so "..", absolute paths and symlinks out of the tree are
// rejected.
func spaHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "..") {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		root, err := os.OpenRoot(dir)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer root.Close()
		fsys := root.FS()

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		info, err := fs.Stat(fsys, name)
		switch {
		case err == nil && !info.IsDir():
			http.ServeFileFS(w, r, fsys, name)
			return
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			http.NotFound(w, r)
			return
		case path.Ext(name) != "":
			// Missing assets 404 rather than returning HTML.
			http.NotFound(w, r)
			return
		}
		if _, err := fs.Stat(fsys, "index.html"); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFileFS(w, r, fsys, "index.html")
	})
}
