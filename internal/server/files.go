package server

import (
	"mime"
	"net/http"
	"path"
	"strconv"
)

// handleFile proxies an object from the store to the client.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errStoreMissing)
		return
	}
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	if key == "" {
		writeError(w, r, errBadRequest("object key is required"))
		return
	}

	data, err := s.store.Download(r.Context(), bucket, key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(key))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	h := w.Header()
	h.Set("Content-Type", ctype)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
