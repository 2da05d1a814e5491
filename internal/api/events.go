package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/relay/internal/model"
)

const contentTypeEventStream = "text/event-stream"

// handleStreamEvents streams an execution's lifecycle events as SSE until the
// execution finishes or the client goes away. A finished execution yields an
// immediate done event.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.engine.GetExecution(id); err != nil {
		s.writeEngineError(w, err, "get execution")
		return
	}

	// Subscribe on a closed topic returns a closed channel, so an execution
	// finishing between the lookup and here still ends the stream.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	w.Header().Set("Content-Type", contentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline for SSE", "error", err)
	}

	eventStreams.Inc()
	defer eventStreams.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", []byte(`"stream complete"`))
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return writeSSEEvent(w, string(ev.Kind), data)
}

// writeSSEEvent writes a named SSE event with a single-line JSON payload.
func writeSSEEvent(w http.ResponseWriter, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
