// Package signal delivers signals to process table entries.
package signal

import (
	"log/slog"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/pkg/model"
)

// Deliverer records signals in the receiver's pending mask.
type Deliverer struct {
	clock   clock.Source
	sink    trace.Sink
	logger  *slog.Logger
	resumer func(p *proc.Process)
}

// New creates a Deliverer. sink may be nil.
func New(clk clock.Source, sink trace.Sink, logger *slog.Logger) *Deliverer {
	if sink == nil {
		sink = trace.Discard
	}
	return &Deliverer{
		clock:  clk,
		sink:   sink,
		logger: logger.With("component", "signal"),
	}
}

// SetResumer installs the callback used to continue a stopped process on
// SIGCONT.
func (d *Deliverer) SetResumer(fn func(p *proc.Process)) {
	d.resumer = fn
}

// Send delivers sig to p. Signals to free entries are dropped, as are
// catchable signals p ignores.
func (d *Deliverer) Send(p *proc.Process, sig model.Signal) {
	if p == nil || !p.InUse() {
		return
	}
	if sig <= 0 || int(sig) >= proc.NRSignals {
		d.logger.Warn("signal out of range", "pid", p.PID, "signal", int(sig))
		return
	}
	if sig.Catchable() && p.Handlers[sig] == proc.SigIgnore {
		d.logger.Debug("signal ignored", "pid", p.PID, "signal", sig)
		return
	}

	p.Received |= sig.Mask()
	d.sink.Emit(model.Event{
		Tick:   d.clock.Ticks(),
		Kind:   model.EventSignal,
		PID:    p.PID,
		Target: -1,
		Detail: sig.String(),
	})
	d.logger.Debug("signal sent", "pid", p.PID, "signal", sig)

	if sig == model.SIGCONT && p.State == model.ProcStateStopped && d.resumer != nil {
		d.resumer(p)
	}
}

// Next removes and returns the lowest-numbered pending signal of p.
func (d *Deliverer) Next(p *proc.Process) (model.Signal, bool) {
	for i := 1; i < proc.NRSignals; i++ {
		sig := model.Signal(i)
		if p.Pending(sig) {
			p.Received &^= sig.Mask()
			return sig, true
		}
	}
	return 0, false
}
