package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// handleAskStream streams the answer as server-sent events. Until the first
// delta is written, errors are plain JSON responses; after that they are sent
// as an "error" event.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if !s.decode(w, r, &req) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set(models.SessionHeader, req.SessionID)
		w.WriteHeader(http.StatusOK)
	}
	emit := func(delta string) error {
		begin()
		if err := writeEvent(w, "", delta); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	s.logger.Debug("ask stream request", zap.String("query", req.Query), zap.String("session_id", req.SessionID))
	_, err := s.pipeline.AnswerStream(r.Context(), &req, emit)
	if err != nil {
		if !started {
			s.fail(w, "ask stream failed", err)
			return
		}
		s.logger.Warn("ask stream interrupted", zap.String("session_id", req.SessionID), zap.Error(err))
		_ = writeEvent(w, "error", err.Error())
		flusher.Flush()
		return
	}
	begin()
	_ = writeEvent(w, "", models.DoneMarker)
	flusher.Flush()
}

// writeEvent writes one event, with one data line per line of data.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
