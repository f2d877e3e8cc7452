package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chainweave/forge/eventbus"
)

// keepAliveInterval paces the SSE comment frames that hold idle connections
// open through proxies.
const keepAliveInterval = 30 * time.Second

// handleEvents streams the event feed as server-sent events. A Last-Event-ID
// header resumes the stream after the named event; missed events still held
// in the replay window are delivered before live ones.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, CodeInternalError, "streaming unsupported")
		return
	}

	var lastEventID int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastEventID, _ = strconv.ParseInt(v, 10, 64)
	}

	sub, err := s.bus.Subscribe(r.Context(), lastEventID)
	if err != nil {
		if errors.Is(err, eventbus.ErrCapacity) {
			s.fail(w, http.StatusServiceUnavailable, CodeSSECapacityFull, "event stream is at capacity")
			return
		}
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "subscribe failed", err)
		return
	}
	defer sub.Close()

	s.recorder.SSEConnected()
	defer s.recorder.SSEDisconnected()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, open := <-sub.C:
			if !open {
				return
			}
			if err := writeFrame(w, env); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE frame. The unpersisted greeting (id 0) goes out
// without an id line so it never resets the client's Last-Event-ID cursor.
func writeFrame(w http.ResponseWriter, env eventbus.Envelope) error {
	if env.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", env.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, env.Data)
	return err
}
