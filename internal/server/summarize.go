package server

import (
	"net/http"

	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

type summarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
	MinLength int    `json:"min_length"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, r, errSummarizerMissing)
		return
	}
	var req summarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	length := s.summaryLength
	if req.MaxLength != 0 {
		length.Max = req.MaxLength
	}
	if req.MinLength != 0 {
		length.Min = req.MinLength
	}

	summary, err := s.summarizer.Summarize(r.Context(), req.Text, length)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarizeResponse{Summary: summary})
}

type summarizersResponse struct {
	Enabled bool               `json:"enabled"`
	Models  []summarizer.Model `json:"models"`
}

func (s *Server) handleSummarizers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarizersResponse{
		Enabled: s.summarizer != nil,
		Models:  summarizer.AvailableModels(),
	})
}
