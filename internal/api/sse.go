package api

import (
	"fmt"
	"net/http"

	"dreamcore/orchestrator/internal/eventstream"
)

// sseWriter streams eventstream.Event values as `data: ...\n\n` frames,
// flushing after every write so clients see events as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // hint reverse proxies not to buffer
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) Write(e eventstream.Event) error {
	frame, err := eventstream.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
