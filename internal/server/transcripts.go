package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/MrWong99/scribe/internal/history"
)

type transcriptsResponse struct {
	Transcripts []history.Entry `json:"transcripts"`
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, errBadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, transcriptsResponse{Transcripts: entries})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, errBadRequest("invalid transcript id"))
		return
	}
	e, err := s.history.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
