package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/scribe/internal/history"
	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/internal/pipeline"
	"github.com/MrWong99/scribe/internal/summarize"
	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
	"github.com/MrWong99/scribe/pkg/storage"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// badRequest marks a client error detected before any work started.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequest{msg: msg} }

// statusFor maps an error to its HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	var br badRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, br.msg
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest, "invalid object key"
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "object too large"
	case errors.Is(err, audio.ErrDecode):
		return http.StatusUnprocessableEntity, "could not decode audio"
	case errors.Is(err, pipeline.ErrNoSpeech):
		return http.StatusUnprocessableEntity, "no speech detected"
	case errors.Is(err, pipeline.ErrTotalFailure):
		return http.StatusBadGateway, "transcription failed"
	case errors.Is(err, summarize.ErrEmptyText):
		return http.StatusBadRequest, "no text provided for summarization"
	case errors.Is(err, summarizer.ErrInvalidLength):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errNotConfigured):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

// writeError logs err and writes the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	log := observe.Logger(r.Context())
	if status >= 500 {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errBadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
