package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/MrWong99/scribe/internal/history"
	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/internal/pipeline"
	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

// errNotConfigured is returned by endpoints whose backing service is absent.
var errNotConfigured = errors.New("not configured")

var (
	errSummarizerMissing = fmt.Errorf("summarization is %w", errNotConfigured)
	errStoreMissing      = fmt.Errorf("object storage is %w", errNotConfigured)
)

type segmentJSON struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text,omitempty"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

type transcribeResponse struct {
	ID                string        `json:"id,omitempty"`
	Text              string        `json:"text"`
	Summary           string        `json:"summary,omitempty"`
	SummaryError      string        `json:"summary_error,omitempty"`
	Mode              pipeline.Mode `json:"mode"`
	DurationSeconds   float64       `json:"duration_seconds"`
	SegmentsProcessed int           `json:"segments_processed"`
	TotalSegments     int           `json:"total_segments"`
	FailedSegments    int           `json:"failed_segments"`
	Segments          []segmentJSON `json:"segments,omitempty"`
}

func newTranscribeResponse(m pipeline.MergedTranscript) transcribeResponse {
	resp := transcribeResponse{
		Text:              m.Text,
		Mode:              m.Mode,
		DurationSeconds:   m.Duration.Seconds(),
		SegmentsProcessed: m.SegmentsProcessed,
		TotalSegments:     m.TotalSegments,
		FailedSegments:    m.FailedSegments,
	}
	if m.Mode != pipeline.ModeParallel {
		return resp
	}
	resp.Segments = make([]segmentJSON, len(m.Segments))
	for i, sr := range m.Segments {
		sj := segmentJSON{Index: sr.Index, Start: sr.Start, End: sr.End, Text: sr.Text, Success: sr.Success}
		if sr.Err != nil {
			sj.Error = "segment failed"
		}
		resp.Segments[i] = sj
	}
	return resp
}

// transcribeParams are the per-request knobs shared by both transcribe
// endpoints.
type transcribeParams struct {
	opts      pipeline.Options
	summarize bool
	length    summarizer.Length
}

func (s *Server) buildParams(segmentSeconds float64, workers int, summarize bool, maxLen, minLen int) (transcribeParams, error) {
	p := s.Defaults()
	switch {
	case math.IsNaN(segmentSeconds) || math.IsInf(segmentSeconds, 0):
		return transcribeParams{}, errBadRequest("segment_length must be a number of seconds")
	case segmentSeconds < 0:
		return transcribeParams{}, errBadRequest("segment_length must be positive")
	case segmentSeconds > 0:
		d := time.Duration(segmentSeconds * float64(time.Second))
		if d < time.Second || d > maxSegmentLength {
			return transcribeParams{}, errBadRequest(fmt.Sprintf("segment_length must be between 1 and %d seconds", int(maxSegmentLength.Seconds())))
		}
		p.SegmentLength = d
	}
	switch {
	case workers < 0 || workers > s.maxWorkers:
		return transcribeParams{}, errBadRequest(fmt.Sprintf("workers must be between 1 and %d", s.maxWorkers))
	case workers > 0:
		p.Workers = workers
	}

	length := s.summaryLength
	if maxLen != 0 {
		length.Max = maxLen
	}
	if minLen != 0 {
		length.Min = minLen
	}
	if summarize {
		if s.summarizer == nil {
			return transcribeParams{}, errSummarizerMissing
		}
		if err := length.Validate(); err != nil {
			return transcribeParams{}, errBadRequest(err.Error())
		}
	}
	return transcribeParams{opts: p, summarize: summarize, length: length}, nil
}

// queryParams parses the transcribe query string.
func (s *Server) queryParams(q url.Values) (transcribeParams, error) {
	var (
		seconds        float64
		workers        int
		summarize      bool
		maxLen, minLen int
		err            error
	)
	if v := q.Get("segment_length"); v != "" {
		seconds, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return transcribeParams{}, errBadRequest("segment_length must be a number of seconds")
		}
		if seconds <= 0 {
			return transcribeParams{}, errBadRequest("segment_length must be positive")
		}
	}
	if v := q.Get("workers"); v != "" {
		if workers, err = strconv.Atoi(v); err != nil || workers == 0 {
			return transcribeParams{}, errBadRequest(fmt.Sprintf("workers must be between 1 and %d", s.maxWorkers))
		}
	}
	if v := q.Get("summarize"); v != "" {
		if summarize, err = strconv.ParseBool(v); err != nil {
			return transcribeParams{}, errBadRequest("summarize must be a boolean")
		}
	}
	if v := q.Get("max_length"); v != "" {
		if maxLen, err = strconv.Atoi(v); err != nil || maxLen <= 0 {
			return transcribeParams{}, errBadRequest("max_length must be a positive integer")
		}
	}
	if v := q.Get("min_length"); v != "" {
		if minLen, err = strconv.Atoi(v); err != nil || minLen < 0 {
			return transcribeParams{}, errBadRequest("min_length must be a non-negative integer")
		}
	}
	return s.buildParams(seconds, workers, summarize, maxLen, minLen)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	params, err := s.queryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	src, name, err := uploadSource(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.transcribe(w, r, src, name, params)
}

// uploadSource returns the audio carried by r: the "file" part of a
// multipart form, or the raw body otherwise. The source streams, so it must
// be consumed before the handler returns.
func uploadSource(r *http.Request) (audio.Source, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return audio.Source{}, "", errBadRequest("request body is empty")
		}
		name := baseName(r.URL.Query().Get("filename"))
		return audio.FromReader(r.Body, name), name, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return audio.Source{}, "", errBadRequest("invalid multipart body: " + err.Error())
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return audio.Source{}, "", errBadRequest(`multipart form has no "file" field`)
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return audio.Source{}, "", err
			}
			return audio.Source{}, "", errBadRequest("invalid multipart body: " + err.Error())
		}
		if part.FormName() == "file" {
			name := baseName(part.FileName())
			return audio.FromReader(part, name), name, nil
		}
	}
}

// baseName strips any directory from a client supplied file name.
func baseName(name string) string {
	switch b := path.Base(name); b {
	case ".", "/":
		return ""
	default:
		return b
	}
}

type storageRequest struct {
	Bucket        string  `json:"bucket"`
	Key           string  `json:"key"`
	SegmentLength float64 `json:"segment_length"`
	Workers       int     `json:"workers"`
	Summarize     bool    `json:"summarize"`
	MaxLength     int     `json:"max_length"`
	MinLength     int     `json:"min_length"`
}

func (s *Server) handleTranscribeStorage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errStoreMissing)
		return
	}
	var req storageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Bucket == "" || req.Key == "" {
		writeError(w, r, errBadRequest("bucket and key are required"))
		return
	}
	if req.MaxLength < 0 || req.MinLength < 0 {
		writeError(w, r, errBadRequest("max_length and min_length must not be negative"))
		return
	}
	params, err := s.buildParams(req.SegmentLength, req.Workers, req.Summarize, req.MaxLength, req.MinLength)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := s.store.Download(r.Context(), req.Bucket, req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := req.Bucket + "/" + req.Key
	s.transcribe(w, r, audio.FromBytes(data, baseName(req.Key)), name, params)
}

// transcribe runs the pipeline, the optional summary and the history write,
// then writes the response.
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request, src audio.Source, name string, p transcribeParams) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	merged, err := s.transcriber.Transcribe(ctx, src, p.opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := newTranscribeResponse(merged)

	if p.summarize {
		summary, err := s.summarizer.Summarize(ctx, merged.Text, p.length)
		if err != nil {
			_, msg := statusFor(err)
			resp.SummaryError = msg
			log.Warn("summary of finished transcript failed", "err", err)
		} else {
			resp.Summary = summary
		}
	}

	entry, err := s.history.Record(ctx, history.Entry{
		Source:         name,
		Provider:       s.providerName,
		Mode:           string(merged.Mode),
		Text:           merged.Text,
		Summary:        resp.Summary,
		AudioSeconds:   merged.Duration.Seconds(),
		TotalSegments:  merged.TotalSegments,
		FailedSegments: merged.FailedSegments,
	})
	if err != nil {
		log.Warn("could not record transcript history", "err", err)
	} else {
		resp.ID = entry.ID.String()
	}

	writeJSON(w, http.StatusOK, resp)
}
