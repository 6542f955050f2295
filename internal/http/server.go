// Package http is the gateway surface: it parses transcription requests,
// drives the router/orchestrator/formatter chain and writes responses.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/audio"
	"github.com/whispergate/whispergate/internal/format"
	"github.com/whispergate/whispergate/internal/history"
	"github.com/whispergate/whispergate/internal/transcribe"
)

const maxUploadBytes = 64 << 20

type Server struct {
	router *transcribe.Router
	orch   *transcribe.Orchestrator
	hist   *history.Store // nil disables history
}

// NewRouter wires the single transcription route plus the optional realtime
// handler. Every other path answers 200 "OK", a deliberate permissive
// default kept for compatibility with existing clients.
func NewRouter(router *transcribe.Router, orch *transcribe.Orchestrator, hist *history.Store, realtime http.Handler) http.Handler {
	s := &Server{router: router, orch: orch, hist: hist}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", s.handleTranscription)
	if realtime != nil {
		mux.Handle("/v1/realtime", realtime)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("path", r.URL.Path).Msg("unknown route, answering OK")
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Write([]byte("OK"))
		return
	}

	audioBytes, field, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audioBytes) == 0 {
		writeError(w, http.StatusBadRequest, "audio payload is empty")
		return
	}

	f := transcribe.ParseFormat(field("response_format"))
	stream := parseBool(field("stream"))
	temperature, _ := strconv.ParseFloat(field("temperature"), 64)

	backend, err := s.router.Resolve(field("provider"), f, stream)
	if err != nil {
		status := statusFor(err)
		writeError(w, status, err.Error())
		return
	}

	req := transcribe.Request{
		Audio:       audioBytes,
		Language:    field("language"),
		Prompt:      field("prompt"),
		Format:      f,
		Stream:      stream,
		Model:       field("model"),
		Temperature: temperature,
	}

	if stream {
		s.streamResponse(w, r, backend, req)
		return
	}

	var hash string
	if s.hist != nil && !f.Timestamped() {
		hash = history.HashBytes(audioBytes)
		if text, ok, err := s.hist.LookupText(r.Context(), hash, string(backend.Provider())); err == nil && ok {
			log.Debug().Str("hash", hash).Msg("serving cached transcription")
			writeResult(w, f, transcribe.Result{Text: text})
			return
		}
	}

	res, err := s.orch.Transcribe(r.Context(), backend, req)
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Int("status", status).Msg("transcription failed")
		writeError(w, status, err.Error())
		return
	}
	if s.hist != nil && hash != "" {
		if err := s.hist.Insert(context.Background(), history.Record{
			Hash:     hash,
			Provider: string(backend.Provider()),
			Format:   string(f),
			Text:     res.Text,
		}); err != nil {
			log.Warn().Err(err).Msg("history insert failed")
		}
	}
	writeResult(w, f, res)
}

// streamResponse emits increments as they are decoded. The 200 status line
// is committed only once the first increment is ready, so normalization and
// validation failures still surface as proper error responses. Failures
// after the commit terminate the stream; with SSE the end sentinel is still
// sent.
func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, backend transcribe.Backend, req transcribe.Request) {
	sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	enc := format.NewStreamEncoder(req.Format, sse)
	flusher, _ := w.(http.Flusher)

	committed := false
	commit := func() {
		if committed {
			return
		}
		committed = true
		h := w.Header()
		h.Set("Content-Type", enc.ContentType())
		if sse {
			h.Set("Cache-Control", "no-cache")
			h.Set("Connection", "keep-alive")
			h.Set("Access-Control-Allow-Origin", "*")
		}
		w.WriteHeader(http.StatusOK)
	}

	emit := func(seg transcribe.Segment) error {
		b := enc.Segment(seg)
		if len(b) == 0 {
			return nil
		}
		commit()
		if _, err := w.Write(b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	res, err := s.orch.TranscribeStream(r.Context(), backend, req, emit)
	if err != nil && !committed {
		status := statusFor(err)
		log.Error().Err(err).Int("status", status).Msg("transcription failed")
		writeError(w, status, err.Error())
		return
	}
	if err != nil {
		// Status line already committed; segments flushed so far stand.
		log.Warn().Err(err).Msg("stream terminated early")
	} else if s.hist != nil && !req.Format.Timestamped() {
		if err := s.hist.Insert(context.Background(), history.Record{
			Hash:     history.HashBytes(req.Audio),
			Provider: string(backend.Provider()),
			Format:   string(req.Format),
			Text:     res.Text,
		}); err != nil {
			log.Warn().Err(err).Msg("history insert failed")
		}
	}
	commit()
	if b := enc.End(); len(b) > 0 {
		w.Write(b)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// parseRequest extracts the audio payload and a form-field accessor from a
// multipart body, or falls back to raw-body audio with query parameters.
func parseRequest(r *http.Request) ([]byte, func(string) string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, nil, errors.New("unparseable multipart body")
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, errors.New("missing required field: file")
		}
		defer f.Close()
		b, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return nil, nil, errors.New("reading file field failed")
		}
		return b, r.FormValue, nil
	}

	b, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, nil, errors.New("reading request body failed")
	}
	q := r.URL.Query()
	return b, q.Get, nil
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transcribe.ErrInvalidRequest),
		errors.Is(err, transcribe.ErrUnsupportedCombination),
		errors.Is(err, audio.ErrDecode),
		errors.Is(err, audio.ErrConversion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, f transcribe.Format, res transcribe.Result) {
	body, err := format.Render(f, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rendering response failed")
		return
	}
	w.Header().Set("Content-Type", format.ContentType(f))
	w.Write(body)
}

// writeError renders the one stable error shape every failing response
// carries, regardless of status code.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
