// Package sched picks which process runs next on the single processor.
//
// Readiness is not kept in a queue: every reschedule scans the process table
// once for expired alarms and once more through the active Policy to choose
// among READY entries. IDLE is the fallback candidate of every round and is
// never scanned itself.
package sched

import (
	"fmt"
	"log/slog"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/pkg/model"
)

// Signaler delivers a signal to a process.
type Signaler interface {
	Send(p *proc.Process, sig model.Signal)
}

// Switcher transfers the processor from prev to next.
type Switcher interface {
	SwitchTo(prev, next *proc.Process)
}

// Deps are the collaborators a Scheduler needs.
type Deps struct {
	Clock    clock.Source
	Signals  Signaler
	Switcher Switcher
	Policy   Policy     // nil selects the aging policy
	Sink     trace.Sink // nil discards events
}

// Scheduler owns the "currently running" designation.
type Scheduler struct {
	table    *proc.Table
	clock    clock.Source
	signals  Signaler
	switcher Switcher
	policy   Policy
	sink     trace.Sink
	logger   *slog.Logger

	curr *proc.Process
	last *proc.Process
}

// New creates a Scheduler over a booted table; IDLE starts as the current
// process.
func New(table *proc.Table, deps Deps, logger *slog.Logger) *Scheduler {
	if deps.Policy == nil {
		deps.Policy = Aging()
	}
	if deps.Sink == nil {
		deps.Sink = trace.Discard
	}
	return &Scheduler{
		table:    table,
		clock:    deps.Clock,
		signals:  deps.Signals,
		switcher: deps.Switcher,
		policy:   deps.Policy,
		sink:     deps.Sink,
		logger:   logger.With("component", "sched", "policy", deps.Policy.Name()),
		curr:     table.Idle(),
		last:     table.Idle(),
	}
}

// Current returns the running process.
func (s *Scheduler) Current() *proc.Process { return s.curr }

// Last returns the process that ran before the latest reschedule.
func (s *Scheduler) Last() *proc.Process { return s.last }

// Policy returns the active selection policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// Sched makes p ready to run and resets its waiting credit.
func (s *Scheduler) Sched(p *proc.Process) {
	p.SetState(model.ProcStateReady)
	p.Counter = 0
}

// Yield reschedules: the current process gives up the processor, expired
// alarms are delivered, and the policy's choice is switched to.
func (s *Scheduler) Yield() {
	if s.curr.State == model.ProcStateRunning {
		s.Sched(s.curr)
	}
	s.last = s.curr

	s.checkAlarms()

	next := s.policy.Pick(s.table)
	if next == nil || (next.State != model.ProcStateReady && !next.IsIdle()) {
		panic(fmt.Sprintf("sched: policy %s picked a process that is not ready", s.policy.Name()))
	}

	prev := s.curr
	next.Priority = proc.PrioUser
	next.SetState(model.ProcStateRunning)
	next.Counter = proc.Quantum
	s.curr = next

	if prev != next {
		s.sink.Emit(model.Event{
			Tick:   s.clock.Ticks(),
			Kind:   model.EventSwitch,
			PID:    prev.PID,
			Target: next.PID,
		})
	}
	if s.switcher != nil {
		s.switcher.SwitchTo(prev, next)
	}
}

// checkAlarms delivers SIGALRM to every process whose alarm has expired.
func (s *Scheduler) checkAlarms() {
	now := s.clock.Ticks()
	s.table.Each(func(p *proc.Process) bool {
		if p.Alarm != 0 && p.Alarm < now {
			p.Alarm = 0
			s.sink.Emit(model.Event{Tick: now, Kind: model.EventAlarm, PID: p.PID, Target: -1})
			s.signals.Send(p, model.SIGALRM)
		}
		return true
	})
}

// Stop stops the current process, notifies its father and reschedules.
// IDLE cannot be stopped.
func (s *Scheduler) Stop() error {
	p := s.curr
	if p.IsIdle() {
		return fmt.Errorf("stop idle: %w", model.EPERM)
	}
	p.SetState(model.ProcStateStopped)
	s.sink.Emit(model.Event{
		Tick:   s.clock.Ticks(),
		Kind:   model.EventStop,
		PID:    p.PID,
		Target: p.FatherPID(),
	})
	s.logger.Debug("process stopped", "pid", p.PID)
	s.signals.Send(p.Father, model.SIGCHLD)
	s.Yield()
	return nil
}

// Resume makes a stopped process ready again. Processes in any other state
// are left alone.
func (s *Scheduler) Resume(p *proc.Process) {
	if p.State != model.ProcStateStopped {
		return
	}
	s.Sched(p)
	s.sink.Emit(model.Event{Tick: s.clock.Ticks(), Kind: model.EventResume, PID: p.PID, Target: -1})
	s.logger.Debug("process resumed", "pid", p.PID)
}
