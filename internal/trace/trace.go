// Package trace collects kernel events and hands them to persistent storage.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/pmcore/pkg/model"
)

// Sink receives kernel events as they happen. Emit must not block.
type Sink interface {
	Emit(ev model.Event)
}

type discard struct{}

func (discard) Emit(model.Event) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

// Writer persists batches of events.
type Writer interface {
	AppendEvents(ctx context.Context, runID string, events []model.Event) error
}

// Recorder buffers events for one run and writes them out on Flush.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	seq     int
	pending []model.Event
	counts  map[model.EventKind]int
	w       Writer
	logger  *slog.Logger
}

// NewRecorder creates a Recorder for runID. w may be nil, in which case
// events are only counted.
func NewRecorder(runID string, w Writer, logger *slog.Logger) *Recorder {
	return &Recorder{
		runID:  runID,
		w:      w,
		counts: make(map[model.EventKind]int),
		logger: logger.With("component", "trace", "run_id", runID),
	}
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Emit implements Sink.
func (r *Recorder) Emit(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ev.RunID = r.runID
	ev.Seq = r.seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	r.counts[ev.Kind]++
	if r.w != nil {
		r.pending = append(r.pending, ev)
	}
	r.logger.Debug("event", "kind", ev.Kind, "tick", ev.Tick, "pid", ev.PID, "target", ev.Target, "detail", ev.Detail)
}

// Count returns how many events of kind have been emitted.
func (r *Recorder) Count(kind model.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Total returns the number of events emitted.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Flush writes buffered events. On failure the events stay buffered.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 || r.w == nil {
		return nil
	}
	if err := r.w.AppendEvents(ctx, r.runID, batch); err != nil {
		r.mu.Lock()
		r.pending = append(batch, r.pending...)
		r.mu.Unlock()
		return fmt.Errorf("flush %d events: %w", len(batch), err)
	}
	r.logger.Debug("flushed", "events", len(batch))
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}
