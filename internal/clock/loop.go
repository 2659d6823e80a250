package clock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Ticker is driven once per timer interrupt.
type Ticker interface {
	Tick()
}

// Flusher persists buffered state.
type Flusher interface {
	Flush(ctx context.Context) error
}

// LoopConfig holds timer loop configuration.
type LoopConfig struct {
	Interval   time.Duration // wall time between interrupts
	FlushEvery int           // interrupts between flushes; 0 disables flushing
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{Interval: 10 * time.Millisecond, FlushEvery: 100}
}

// Loop raises the timer interrupt in real time.
type Loop struct {
	target  Ticker
	flusher Flusher
	config  LoopConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticks   int
}

// NewLoop creates a timer loop driving target. flusher may be nil.
func NewLoop(target Ticker, flusher Flusher, cfg LoopConfig, logger *slog.Logger) *Loop {
	return &Loop{
		target:  target,
		flusher: flusher,
		config:  cfg,
		logger:  logger.With("component", "clock"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("clock started", "interval", l.config.Interval)
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("clock stopping (context cancelled)")
			l.finish(context.Background())
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("clock stopping (stop called)")
			l.finish(ctx)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// finish flushes what is left and releases Stop.
func (l *Loop) finish(ctx context.Context) {
	if l.flusher != nil {
		if err := l.flusher.Flush(ctx); err != nil {
			l.logger.Error("final flush", "error", err)
		}
	}
	close(l.doneCh)
}

// Stop shuts the loop down and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick raises one interrupt.
func (l *Loop) Tick(ctx context.Context) error {
	l.target.Tick()
	l.ticks++
	if l.flusher == nil || l.config.FlushEvery <= 0 || l.ticks%l.config.FlushEvery != 0 {
		return nil
	}
	if err := l.flusher.Flush(ctx); err != nil {
		return fmt.Errorf("flush after %d ticks: %w", l.ticks, err)
	}
	return nil
}
