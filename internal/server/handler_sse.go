package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/pmcore/pkg/model"
)

type procsSnapshot struct {
	Stats model.KernelStats   `json:"stats"`
	Procs []model.ProcessInfo `json:"procs"`
}

func (s *Server) snapshot() procsSnapshot {
	return procsSnapshot{Stats: s.kernel.Stats(), Procs: s.kernel.Processes()}
}

// handleSSEProcs streams the process table via Server-Sent Events.
// GET /api/v1/sse/procs
func (s *Server) handleSSEProcs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	snap := s.snapshot()
	if err := sendSSEEvent(w, flusher, "init", snap); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}
	lastTick := snap.Stats.Ticks

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap := s.snapshot()
			if snap.Stats.Ticks != lastTick {
				if err := sendSSEEvent(w, flusher, "update", snap); err != nil {
					s.logger.Debug("sse client disconnected", "error", err)
					return
				}
				lastTick = snap.Stats.Ticks
				continue
			}
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
